package gpu

import "errors"

var (
	ErrOutOfBounds               = errors.New("sub-buffer range exceeds buffer size")
	ErrNotMappable               = errors.New("buffer is not host visible")
	ErrInvalidDescriptorCount    = errors.New("descriptor count must be at least 1")
	ErrBindingConflict           = errors.New("shader stages disagree on a descriptor binding")
	ErrNoEntryPoint              = errors.New("shader module has no entry point for stage")
	ErrInvalidSPIRV              = errors.New("invalid SPIR-V module")
	ErrFrameAllocatorFull        = errors.New("frame allocator is full")
	ErrTextureArrayFull          = errors.New("texture array is full")
	ErrInvalidCommandBufferState = errors.New("invalid command buffer state")
	ErrNoPipelineBound           = errors.New("no pipeline bound")
	ErrCopySizeMismatch          = errors.New("copy source and destination sizes differ")
	ErrMultipleDepthAttachments  = errors.New("render pass has more than one depth attachment")
	ErrNoAttachments             = errors.New("render pass has no attachments")
	ErrHazardMismatch            = errors.New("barrier source does not cover the last recorded access")
	ErrTooManyQueries            = errors.New("too many gpu queries")
	ErrUnsupported               = errors.New("operation not supported by the driver")
)

var ErrAttachmentLayout = errors.New("attachment is not in an attachment layout")
