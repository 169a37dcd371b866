package services

import (
	"fmt"
	"sync"

	"github.com/aiwuxian/project-extraction/internal/models"
)

// LocationService 地点模板注册表。持有全局模板；战局只拿克隆体，
// 全局模板仅允许轮换选择器在写锁内修改。
type LocationService struct {
	mu        sync.RWMutex
	templates map[string]*models.LocationTemplate
	order     []string
}

func NewLocationService(templates []models.LocationTemplate) *LocationService {
	ls := &LocationService{
		templates: make(map[string]*models.LocationTemplate, len(templates)),
	}
	for i := range templates {
		t := templates[i]
		ls.templates[t.ID] = &t
		ls.order = append(ls.order, t.ID)
	}
	return ls
}

// Clone 取得地点模板的战局作用域副本
func (ls *LocationService) Clone(id string) (*models.LocationTemplate, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	tmpl, ok := ls.templates[id]
	if !ok {
		return nil, fmt.Errorf("地点不存在: %s", id)
	}
	return tmpl.Clone(), nil
}

// Get 读取全局模板（调用方不得修改）
func (ls *LocationService) Get(id string) (*models.LocationTemplate, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	tmpl, ok := ls.templates[id]
	return tmpl, ok
}

// IDs 按注册顺序返回全部地点ID
func (ls *LocationService) IDs() []string {
	return append([]string(nil), ls.order...)
}

// Apply 在写锁内对全局模板执行修改（轮换选择器专用，先清零后设置不可交错）
func (ls *LocationService) Apply(fn func(templates map[string]*models.LocationTemplate)) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	fn(ls.templates)
}
