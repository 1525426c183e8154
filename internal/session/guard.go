package session

import "sync"

// Guard 保证同一会话同一时刻只处理一个回合。
// 第二条并发消息直接被拒绝而不是排队,保护未决写操作不被交错修改。
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGuard 创建会话守卫。
func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]struct{})}
}

// Acquire 尝试占用会话。返回 false 表示该会话已有回合在处理。
func (g *Guard) Acquire(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[id]; busy {
		return false
	}
	g.inFlight[id] = struct{}{}
	return true
}

// Release 释放会话占用。
func (g *Guard) Release(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, id)
}
