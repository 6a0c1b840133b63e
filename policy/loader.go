package policy

import (
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/forgeworks/blockforge/errors"
)

// LoadRules reads a YAML rules file.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, errors.Wrapf(err, "read policy file %s", path)
	}

	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, errors.Wrapf(err, "parse policy file %s", path)
	}

	switch rules.Mode {
	case ModeWhitelist, ModeBlacklist, "":
	default:
		return Rules{}, errors.Newf("policy file %s: unknown mode %q", path, rules.Mode)
	}
	return rules, nil
}

// Watch reloads the engine whenever the rules file changes on disk. A file
// that becomes unreadable or malformed keeps the previous snapshot; rules
// are never partially applied. Returns a stop function.
func Watch(path string, engine *Engine, logger *zap.SugaredLogger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create policy watcher")
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "watch policy file %s", path)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				rules, err := LoadRules(path)
				if err != nil {
					if logger != nil {
						logger.Errorw("Policy reload failed; keeping previous rules",
							"path", path,
							"error", err,
						)
					}
					continue
				}
				engine.Reload(rules)
				if logger != nil {
					logger.Infow("Policy rules reloaded", "path", path, "mode", rules.Mode)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Errorw("Policy watcher error", "error", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
