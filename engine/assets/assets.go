package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/anima-binding/engine/assets/loaders"
	"github.com/spaghettifunk/anima-binding/engine/core"
	"github.com/spaghettifunk/anima-binding/engine/resources"
)

var ErrAssetManagerClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path     string
	Type     resources.ResourceType
	Modified time.Time
}

type AssetOp int

const (
	AssetCreated AssetOp = iota
	AssetModified
	AssetRemoved
)

func (op AssetOp) String() string {
	switch op {
	case AssetCreated:
		return "created"
	case AssetModified:
		return "modified"
	case AssetRemoved:
		return "removed"
	}
	return fmt.Sprintf("AssetOp(%d)", int(op))
}

/** @brief Reports a change of an indexed asset on disk. */
type AssetEvent struct {
	Op    AssetOp
	Asset AssetInfo
}

// AssetManager indexes the shader layouts and resource mappings found under
// a directory and, when watching, keeps the index current and reports every
// change on Events.
type AssetManager struct {
	basePath string
	watch    bool

	assets  map[string]AssetInfo
	loaders map[resources.ResourceType]Loader

	mutex sync.RWMutex

	done      chan struct{}
	fsnotify  *fsnotify.Watcher
	isClosed  bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	events    chan AssetEvent
}

func NewAssetManager(cfg core.AssetsConfig) (*AssetManager, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("%w: empty asset base path", core.ErrInvalidConfig)
	}
	am := &AssetManager{
		basePath: filepath.Clean(cfg.BasePath),
		watch:    cfg.Watch,
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[resources.ResourceType]Loader),
		events:   make(chan AssetEvent, 64),
		done:     make(chan struct{}),
	}
	if cfg.Watch {
		fsWatch, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		am.fsnotify = fsWatch
	}
	return am, nil
}

// Initialize registers the loaders and indexes every asset under the base
// path. With watching enabled the directories are added to the watcher and
// the event loop is started.
func (am *AssetManager) Initialize() error {
	am.registerLoader(resources.ResourceTypeShaderLayout, &loaders.ShaderLayoutLoader{})
	am.registerLoader(resources.ResourceTypeResourceMapping, &loaders.ResourceMappingLoader{})

	if err := am.watchRecursive(am.basePath); err != nil {
		return err
	}
	if am.fsnotify != nil {
		am.wg.Add(1)
		go am.start()
	}
	core.LogInfo("Asset manager indexed %d assets under '%s' (watch=%t).", am.Count(), am.basePath, am.watch)
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType resources.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

func (am *AssetManager) BasePath() string {
	return am.basePath
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Assets returns the indexed assets of the given type sorted by path.
func (am *AssetManager) Assets(assetType resources.ResourceType) []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	paths := make([]string, 0, len(am.assets))
	for p := range am.assets {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	out := make([]AssetInfo, 0, len(paths))
	for _, p := range paths {
		if a := am.assets[p]; a.Type == assetType {
			out = append(out, a)
		}
	}
	return out
}

// Lookup returns the index entry of path.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	a, ok := am.assets[filepath.Clean(path)]
	return a, ok
}

// LoadAsset loads an indexed asset with the loader registered for its type.
func (am *AssetManager) LoadAsset(path string) (*resources.Resource, error) {
	am.mutex.RLock()
	asset, exists := am.assets[filepath.Clean(path)]
	var loader Loader
	if exists {
		loader = am.loaders[asset.Type]
	}
	am.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("asset not found: %s", path)
	}
	if loader == nil {
		return nil, fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	return loader.Load(asset.Path)
}

// LoadAll loads every indexed asset of the given type, in path order. Assets
// that fail to load are logged and skipped, and their errors joined.
func (am *AssetManager) LoadAll(assetType resources.ResourceType) ([]*resources.Resource, error) {
	var errs []error
	var out []*resources.Resource
	for _, a := range am.Assets(assetType) {
		res, err := am.LoadAsset(a.Path)
		if err != nil {
			core.LogError("Failed to load asset '%s': %s", a.Path, err)
			errs = append(errs, err)
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

func (am *AssetManager) UnloadAsset(res *resources.Resource) error {
	am.mutex.RLock()
	loader := am.loaders[res.Type]
	am.mutex.RUnlock()
	if loader == nil {
		return fmt.Errorf("no loader registered for asset type: %s", res.Type)
	}
	return loader.Unload(res)
}

// Events delivers the changes seen by the watcher. It is closed by Close.
func (am *AssetManager) Events() <-chan AssetEvent {
	return am.events
}

// Close stops the watcher and closes Events.
func (am *AssetManager) Close() error {
	var err error
	am.closeOnce.Do(func() {
		am.mutex.Lock()
		am.isClosed = true
		am.mutex.Unlock()

		close(am.done)
		am.wg.Wait()
		if am.fsnotify != nil {
			err = am.fsnotify.Close()
		}
		close(am.events)
	})
	return err
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleWatchEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("Asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleWatchEvent(e fsnotify.Event) {
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Has(fsnotify.Create) {
			if err := am.watchRecursive(e.Name); err != nil {
				core.LogWarn("Failed to watch directory '%s': %s", e.Name, err)
			}
		}
		return
	}

	switch {
	case e.Has(fsnotify.Create) || e.Has(fsnotify.Write):
		if info, created, ok := am.handleFileEvent(e.Name); ok {
			op := AssetModified
			if created {
				op = AssetCreated
			}
			am.emit(AssetEvent{Op: op, Asset: info})
		}
	case e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename):
		// A removed directory cannot be stat'ed; dropping an unknown watch
		// only fails.
		_ = am.fsnotify.Remove(e.Name)
		if info, ok := am.removeAsset(e.Name); ok {
			am.emit(AssetEvent{Op: AssetRemoved, Asset: info})
		}
	}
}

func (am *AssetManager) emit(ev AssetEvent) {
	core.LogDebug("Asset %s: %s", ev.Op, ev.Asset.Path)
	select {
	case am.events <- ev:
	case <-am.done:
	}
}

// watchRecursive indexes every asset under path and, when watching, adds all
// directories to the watch list.
func (am *AssetManager) watchRecursive(path string) error {
	am.mutex.RLock()
	closed := am.isClosed
	am.mutex.RUnlock()
	if closed {
		return ErrAssetManagerClosed
	}

	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if am.fsnotify != nil {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// handleFileEvent records the creation or modification of a file. It reports
// whether the file is an asset and whether it was not indexed before.
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool, bool) {
	assetType := determineAssetType(path)
	if assetType == resources.ResourceTypeNone {
		return AssetInfo{}, false, false
	}
	info := AssetInfo{
		Path:     filepath.Clean(path),
		Type:     assetType,
		Modified: time.Now(),
	}
	if s, err := os.Stat(path); err == nil {
		info.Modified = s.ModTime()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	_, existed := am.assets[info.Path]
	am.assets[info.Path] = info
	return info, !existed, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) (AssetInfo, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	key := filepath.Clean(path)
	info, ok := am.assets[key]
	delete(am.assets, key)
	return info, ok
}

func determineAssetType(path string) resources.ResourceType {
	switch filepath.Ext(path) {
	case ".shaderlayout":
		return resources.ResourceTypeShaderLayout
	case ".resmap":
		return resources.ResourceTypeResourceMapping
	default:
		return resources.ResourceTypeNone
	}
}
