package module

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 200 * time.Millisecond

// Reload reports the outcome of reloading one definition file.
type Reload struct {
	Path string
	OID  uint32
	Err  error
}

// Watcher reloads definition files into a Registry when they change on disk.
// Removing a file keeps the last loaded definition.
type Watcher struct {
	// Reloads receives one value per reload attempt. Values are dropped
	// when nobody reads them.
	Reloads chan Reload

	fsw      *fsnotify.Watcher
	reg      *Registry
	conds    *Conditions
	log      *slog.Logger
	debounce time.Duration

	due     chan string
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher starts watching dir. debounce <= 0 selects DefaultDebounce.
func NewWatcher(dir string, reg *Registry, conds *Conditions, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		Reloads:  make(chan Reload, 16),
		fsw:      fsw,
		reg:      reg,
		conds:    conds,
		log:      logger.With("component", "module.watcher", "dir", dir),
		debounce: debounce,
		due:      make(chan string),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops watching and waits for the watch loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.fsw.Close()
		<-w.done
		close(w.Reloads)
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isDefinitionFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.log.Info("definition file removed, keeping loaded definition", "path", ev.Name)
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if t, ok := timers[ev.Name]; ok {
				t.Stop()
			}
			name := ev.Name
			timers[name] = time.AfterFunc(w.debounce, func() {
				select {
				case w.due <- name:
				case <-w.closeCh:
				}
			})
		case name := <-w.due:
			delete(timers, name)
			w.reload(name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) reload(path string) {
	r := Reload{Path: path}
	def, err := LoadFile(path, w.conds)
	if err != nil {
		r.Err = err
		w.log.Error("definition reload failed", "path", path, "error", err)
	} else {
		w.reg.Replace(def)
		r.OID = def.OID()
		w.log.Info("definition reloaded", "path", path, "oid", def.OID(), "name", def.Name())
	}

	select {
	case w.Reloads <- r:
	default:
	}
}
