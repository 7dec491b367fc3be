package gpu

import (
	"errors"
	"fmt"
	"math"

	"github.com/spaghettifunk/abyss/engine/core"
)

// FrameSync is the single frame slot: one fence guarding reuse of per frame
// resources and the two semaphores ordering acquire, render and present.
type FrameSync struct {
	Fence          Handle
	ImageAvailable Handle
	RenderFinished Handle
}

func newFrameSync(driver Driver) (*FrameSync, error) {
	fence, err := driver.CreateFence(true)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame fence: %w", err)
	}
	available, err := driver.CreateSemaphore()
	if err != nil {
		driver.DestroyFence(fence)
		return nil, fmt.Errorf("failed to create semaphore: %w", err)
	}
	finished, err := driver.CreateSemaphore()
	if err != nil {
		driver.DestroyFence(fence)
		driver.DestroySemaphore(available)
		return nil, fmt.Errorf("failed to create semaphore: %w", err)
	}
	return &FrameSync{Fence: fence, ImageAvailable: available, RenderFinished: finished}, nil
}

func (s *FrameSync) destroy(driver Driver) {
	driver.DestroySemaphore(s.RenderFinished)
	driver.DestroySemaphore(s.ImageAvailable)
	driver.DestroyFence(s.Fence)
}

// WaitForFrame blocks until the previous submission of the frame slot has
// finished, then collects its timestamp queries.
func (c *Context) WaitForFrame() error {
	if err := c.driver.WaitFence(c.sync.Fence, math.MaxUint64); err != nil {
		err = fmt.Errorf("failed to wait for frame fence: %w", err)
		core.LogError(err.Error())
		return err
	}
	if c.Queries != nil {
		if err := c.Queries.Collect(); err != nil {
			core.LogWarn(err.Error())
		}
	}
	return nil
}

// AcquireFrame returns the swapchain image to render into. It returns
// core.ErrFrameSkipped, with nothing changed, when no image is available.
// On success the frame fence is reset.
func (c *Context) AcquireFrame() (*Image, uint32, error) {
	sc, err := c.driver.AcquireNextImage(c.sync.ImageAvailable)
	if err != nil {
		if !errors.Is(err, core.ErrFrameSkipped) {
			core.LogError("failed to acquire swapchain image: %s", err.Error())
		}
		return nil, 0, err
	}
	if sc.Generation != c.swapchainGeneration {
		c.swapchainImages = make(map[Handle]*Image)
		c.swapchainGeneration = sc.Generation
	}
	img, ok := c.swapchainImages[sc.Image]
	if !ok {
		img = &Image{
			resource:  c.newResource(fmt.Sprintf("swapchain-%d", sc.Index)),
			Handle:    sc.Image,
			Extent:    sc.Extent,
			Format:    sc.Format,
			Usage:     ImageUsageColorAttachment | ImageUsageTransferDst,
			Layout:    LayoutUndefined,
			swapchain: true,
		}
		c.swapchainImages[sc.Image] = img
	}
	// The acquire semaphore orders the presentation engine's access.
	img.resetAccess()

	if err := c.driver.ResetFence(c.sync.Fence); err != nil {
		err = fmt.Errorf("failed to reset frame fence: %w", err)
		core.LogError(err.Error())
		return nil, 0, err
	}
	return img, sc.Index, nil
}

// SubmitFrame submits the frame's command buffer. It waits for the acquired
// image at the color output stage and signals the render semaphore and fence.
func (c *Context) SubmitFrame(cb *CommandBuffer) error {
	if err := cb.expect("submit frame", CommandBufferRecordingEnded); err != nil {
		return err
	}
	if err := c.driver.Submit(cb.rec, c.sync.ImageAvailable, StageColorAttachmentOutput, c.sync.RenderFinished, c.sync.Fence); err != nil {
		err = fmt.Errorf("failed to submit frame: %w", err)
		core.LogError(err.Error())
		return err
	}
	if c.Queries != nil {
		c.Queries.Submitted()
	}
	return cb.MarkSubmitted()
}

// Present queues imageIndex for presentation after rendering finished.
func (c *Context) Present(imageIndex uint32) error {
	if err := c.driver.Present(c.sync.RenderFinished, imageIndex); err != nil {
		if errors.Is(err, core.ErrFrameSkipped) {
			return nil
		}
		err = fmt.Errorf("failed to present: %w", err)
		core.LogError(err.Error())
		return err
	}
	return nil
}
