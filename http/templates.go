package http

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

const layoutFile = "layout.html"

// Page template names.
const (
	PageStart      = "start.html"
	PagePrediction = "prediction.html"
	PagePredicted  = "predicted.html"
	PageBye        = "bye.html"
)

var pageNames = []string{PageStart, PagePrediction, PagePredicted, PageBye}

// Templates 页面模板集合。每个页面与layout.html组合解析，
// 从目录加载时可以监听文件变化并重新解析
type Templates struct {
	mu    sync.RWMutex
	pages map[string]*template.Template

	fsys   fs.FS
	dir    string
	logger *zap.Logger
}

// LoadTemplates 加载模板，dir为空时使用内嵌模板
func LoadTemplates(dir string, logger *zap.Logger) (*Templates, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Templates{dir: dir, logger: logger}
	if dir == "" {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, err
		}
		t.fsys = sub
	} else {
		t.fsys = os.DirFS(dir)
	}

	pages, err := parsePages(t.fsys)
	if err != nil {
		return nil, err
	}
	t.pages = pages
	return t, nil
}

// mustEmbeddedTemplates 内嵌模板在编译期确定，解析失败属于程序错误
func mustEmbeddedTemplates(logger *zap.Logger) *Templates {
	t, err := LoadTemplates("", logger)
	if err != nil {
		panic(err)
	}
	return t
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).ParseFS(fsys, layoutFile, name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// Render 渲染页面。先写入缓冲区，模板出错时不会输出部分内容
func (t *Templates) Render(w http.ResponseWriter, name string, data interface{}) error {
	t.mu.RLock()
	tmpl, ok := t.pages[name]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown template %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("execute template %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// Reload 重新解析模板，失败时保留原模板
func (t *Templates) Reload() error {
	pages, err := parsePages(t.fsys)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.pages = pages
	t.mu.Unlock()
	return nil
}

// Watch 监听模板目录，文件变化时重新加载，直到ctx结束。
// 内嵌模板不支持监听
func (t *Templates) Watch(ctx context.Context) error {
	if t.dir == "" {
		return errors.New("embedded templates cannot be watched")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(t.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", t.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := t.Reload(); err != nil {
					t.logger.Error("template reload failed, keeping previous set",
						zap.String("file", event.Name), zap.Error(err))
					continue
				}
				t.logger.Info("templates reloaded", zap.String("file", event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.logger.Warn("template watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
