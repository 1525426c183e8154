package capability

import (
	"fmt"
	"sync"
	"time"

	"WealthPilot/internal/errors"
)

// Descriptor 描述一个已注册能力:名称、是否写操作、可靠性档位与处理器。
type Descriptor struct {
	Name            string
	Mutating        bool
	HighReliability bool
	Timeout         time.Duration
	Handler         Handler
	Writer          WriteHandler
}

// Registry 维护能力名称到处理器的静态映射,启动阶段填充后只读共享。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Descriptor
	order   []string
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Descriptor)}
}

// Register 登记一个能力。重复名称或缺少处理器视为接线错误。
func (r *Registry) Register(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("能力名称为空")
	}
	if desc.Mutating {
		if desc.Writer == nil {
			return fmt.Errorf("写能力 %s 缺少两阶段处理器", desc.Name)
		}
	} else if desc.Handler == nil {
		return fmt.Errorf("能力 %s 缺少处理器", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("能力 %s 重复注册", desc.Name)
	}
	r.entries[desc.Name] = desc
	r.order = append(r.order, desc.Name)
	return nil
}

// MustRegister 与 Register 相同,但接线错误直接 panic,用于启动期装配。
func (r *Registry) MustRegister(desc Descriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Lookup 按名称查找能力。
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.entries[name]
	if !ok {
		return Descriptor{}, errors.New(CodeCapabilityNotFound, "",
			errors.WithMetadata("capability", name))
	}
	return desc, nil
}

// Contains 判断能力是否存在。
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names 返回注册顺序下的全部能力名称。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
