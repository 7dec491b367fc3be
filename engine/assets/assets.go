package assets

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/image/font"

	"github.com/spaghettifunk/abyss/engine/assets/loaders"
	"github.com/spaghettifunk/abyss/engine/containers"
	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/systems"
)

const pendingChanges = 256

var (
	ErrNoLoader      = errors.New("no loader registered for extension")
	ErrManagerClosed = errors.New("asset manager already closed")
)

/**
 * @brief Manager loads files under a root directory and caches the results
 * by their path relative to that root. Repeated loads of the same name
 * return the same asset, so GPU caches keyed by ID stay valid until the file
 * changes on disk.
 */
type Manager struct {
	root      string
	shaderDir string
	loaders   map[string]Loader

	mutex sync.RWMutex
	cache map[string]interface{}

	bus  *core.EventBus
	jobs *systems.JobSystem

	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	isClosed bool

	pendingMu sync.Mutex
	pending   *containers.RingQueue[string]
}

// NewManager creates a manager for cfg.Root. bus and jobs may be nil; without
// a bus no change events are fired, without jobs Preload runs serially.
func NewManager(cfg core.AssetsConfig, shaderDir string, bus *core.EventBus, jobs *systems.JobSystem) (*Manager, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset root %s is not a directory", cfg.Root)
	}

	am := &Manager{
		root:      cfg.Root,
		shaderDir: shaderDir,
		loaders:   make(map[string]Loader),
		cache:     make(map[string]interface{}),
		bus:       bus,
		jobs:      jobs,
		done:      make(chan struct{}),
		pending:   containers.NewRingQueue[string](pendingChanges),
	}

	imageLoader := &loaders.ImageLoader{}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"} {
		am.RegisterLoader(ext, imageLoader)
	}
	am.RegisterLoader(".spv", &loaders.ShaderLoader{})
	am.RegisterLoader(".amt", &loaders.MaterialLoader{})
	am.RegisterLoader(".obj", &loaders.ModelLoader{})
	am.RegisterLoader(".fnt", &loaders.BitmapFontLoader{})

	if cfg.HotReload {
		if err := am.Watch(); err != nil {
			return nil, err
		}
	}
	return am, nil
}

func (am *Manager) Root() string {
	return am.root
}

// RegisterLoader replaces the loader used for files with the given extension.
func (am *Manager) RegisterLoader(ext string, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[strings.ToLower(ext)] = loader
}

// Path returns the file system path of an asset name.
func (am *Manager) Path(name string) string {
	return filepath.Join(am.root, filepath.FromSlash(name))
}

func (am *Manager) raw(name string) (interface{}, error) {
	am.mutex.RLock()
	loader, ok := am.loaders[strings.ToLower(filepath.Ext(name))]
	am.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, name)
	}
	return loader.Load(am.Path(name))
}

// cached returns the value stored under key or builds and stores it. When two
// goroutines race on the same key the first stored value wins.
func cached[T any](am *Manager, key string, build func() (T, error)) (T, error) {
	am.mutex.RLock()
	v, ok := am.cache[key]
	am.mutex.RUnlock()
	if ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
		var zero T
		return zero, fmt.Errorf("asset %s has type %T", key, v)
	}

	t, err := build()
	if err != nil {
		core.LogError("failed to load asset %s: %s", key, err.Error())
		return t, err
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	if v, ok := am.cache[key]; ok {
		if prev, ok := v.(T); ok {
			return prev, nil
		}
	}
	am.cache[key] = t
	return t, nil
}

func cleanName(name string) string {
	return filepath.ToSlash(filepath.Clean(name))
}

// LoadShader returns the SPIR-V binary of <shaderDir>/<name>.spv.
func (am *Manager) LoadShader(name string) ([]byte, error) {
	return am.shader(cleanName(filepath.Join(am.shaderDir, name+".spv")))
}

func (am *Manager) shader(key string) ([]byte, error) {
	return cached(am, key, func() ([]byte, error) {
		v, err := am.raw(key)
		if err != nil {
			return nil, err
		}
		return v.([]byte), nil
	})
}

func (am *Manager) LoadTexture(name string) (*ImageTexture, error) {
	key := cleanName(name)
	return cached(am, key, func() (*ImageTexture, error) {
		v, err := am.raw(key)
		if err != nil {
			return nil, err
		}
		img, ok := v.(image.Image)
		if !ok {
			return nil, fmt.Errorf("%s is not an image", key)
		}
		return NewImageTexture(key, img), nil
	})
}

// LoadMaterial reads a .amt file and loads the textures it references.
func (am *Manager) LoadMaterial(name string) (*Material, error) {
	key := cleanName(name)
	return cached(am, key, func() (*Material, error) {
		v, err := am.raw(key)
		if err != nil {
			return nil, err
		}
		cfg := v.(*loaders.MaterialConfig)

		m := NewMaterial(cfg.Name)
		m.Albedo = cfg.Albedo
		m.Roughness = cfg.Roughness
		m.Metallic = cfg.Metallic
		m.Emissive = cfg.Emissive
		m.AlphaCutoff = cfg.AlphaCutoff
		m.Opaque = cfg.Opaque

		maps := []struct {
			name string
			dst  *Texture
		}{
			{cfg.AlbedoMap, &m.AlbedoMap},
			{cfg.RoughnessMap, &m.RoughnessMap},
			{cfg.MetallicMap, &m.MetallicMap},
			{cfg.EmissiveMap, &m.EmissiveMap},
		}
		for _, tm := range maps {
			if tm.name == "" {
				continue
			}
			tex, err := am.LoadTexture(tm.name)
			if err != nil {
				return nil, fmt.Errorf("material %s: %w", cfg.Name, err)
			}
			*tm.dst = tex
		}
		return m, nil
	})
}

// LoadMesh reads a Wavefront OBJ model.
func (am *Manager) LoadMesh(name string) (*MeshData, error) {
	key := cleanName(name)
	return cached(am, key, func() (*MeshData, error) {
		v, err := am.raw(key)
		if err != nil {
			return nil, err
		}
		model := v.(*loaders.ModelData)
		meshName := model.Name
		if meshName == "" {
			meshName = key
		}
		return NewMeshData(meshName, model.Positions, model.UVs, model.Normals, model.Indices), nil
	})
}

func (am *Manager) LoadBitmapFont(name string) (*loaders.BitmapFont, error) {
	key := cleanName(name)
	return cached(am, key, func() (*loaders.BitmapFont, error) {
		v, err := am.raw(key)
		if err != nil {
			return nil, err
		}
		return v.(*loaders.BitmapFont), nil
	})
}

// LoadFontFace rasterizes a TrueType or OpenType font at size points.
func (am *Manager) LoadFontFace(name string, size float64) (font.Face, error) {
	key := fmt.Sprintf("%s@%g", cleanName(name), size)
	return cached(am, key, func() (font.Face, error) {
		v, err := (&loaders.SystemFontLoader{Size: size}).Load(am.Path(name))
		if err != nil {
			return nil, err
		}
		return v.(font.Face), nil
	})
}

func (am *Manager) load(name string) error {
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".spv":
		_, err = am.shader(cleanName(name))
	case ".amt":
		_, err = am.LoadMaterial(name)
	case ".obj":
		_, err = am.LoadMesh(name)
	case ".fnt":
		_, err = am.LoadBitmapFont(name)
	default:
		_, err = am.LoadTexture(name)
	}
	return err
}

/**
 * @brief Preload decodes the named assets on the job system so later loads
 * hit the cache. All names are attempted; the returned error joins every
 * failure.
 */
func (am *Manager) Preload(names ...string) error {
	if am.jobs == nil {
		var errs []error
		for _, name := range names {
			errs = append(errs, am.load(name))
		}
		return errors.Join(errs...)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, name := range names {
		wg.Add(1)
		err := am.jobs.Submit(systems.JobTask{
			Name: "preload " + name,
			Run: func() (interface{}, error) {
				return nil, am.load(name)
			},
			OnComplete: func(interface{}) { wg.Done() },
			OnFailure: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				wg.Done()
			},
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Invalidate drops the cached value of name so the next load reads the file
// again. Font faces of every size are dropped too.
func (am *Manager) Invalidate(name string) {
	key := cleanName(name)
	am.mutex.Lock()
	defer am.mutex.Unlock()
	for k := range am.cache {
		if k == key || strings.HasPrefix(k, key+"@") {
			delete(am.cache, k)
		}
	}
}

// Watch starts watching the root directory and all sub-directories.
func (am *Manager) Watch() error {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return ErrManagerClosed
	}
	if am.watcher != nil {
		return nil
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.watcher = fsWatch
	if err := am.watchRecursive(am.root); err != nil {
		fsWatch.Close()
		am.watcher = nil
		return err
	}
	am.wg.Add(1)
	go am.start(fsWatch)
	return nil
}

// watchRecursive adds all directories under the given one to the watch list.
// Files created before the watch is added are missed.
func (am *Manager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.watcher.Add(walkPath)
		}
		return nil
	})
}

func (am *Manager) start(w *fsnotify.Watcher) {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if e.Op&fsnotify.Create != 0 {
				if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
					am.mutex.Lock()
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err.Error())
					}
					am.mutex.Unlock()
					continue
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			am.handleFileEvent(e.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err.Error())

		case <-am.done:
			return
		}
	}
}

// handleFileEvent drops the cached asset and queues a change notification.
func (am *Manager) handleFileEvent(path string) {
	rel, err := filepath.Rel(am.root, path)
	if err != nil {
		return
	}
	name := cleanName(rel)
	am.Invalidate(name)

	am.pendingMu.Lock()
	defer am.pendingMu.Unlock()
	if err := am.pending.Enqueue(name); err != nil {
		core.LogWarn("dropping change notification for %s: %s", name, err.Error())
	}
}

/**
 * @brief Poll fires EVENT_CODE_ASSET_CHANGED for every change seen since the
 * last call. Call it from the main loop so listeners run on that goroutine.
 * Repeated changes to one file collapse into one event.
 */
func (am *Manager) Poll() int {
	am.pendingMu.Lock()
	var changed []string
	seen := make(map[string]struct{})
	for !am.pending.IsEmpty() {
		name, _ := am.pending.Dequeue()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		changed = append(changed, name)
	}
	am.pendingMu.Unlock()

	for _, name := range changed {
		core.LogDebug("asset changed: %s", name)
		if am.bus != nil {
			am.bus.Fire(core.EventContext{
				Type: core.EVENT_CODE_ASSET_CHANGED,
				Data: core.AssetChangedEvent{Path: name},
			})
		}
	}
	return len(changed)
}

// Close stops the watcher and waits for its goroutine to exit.
func (am *Manager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	w := am.watcher
	am.mutex.Unlock()

	close(am.done)
	var err error
	if w != nil {
		err = w.Close()
	}
	am.wg.Wait()
	return err
}
