package rpc

import (
	"fmt"
	"sync"

	"go.lsp.dev/jsonrpc2"
)

// pendingTable maps in-flight request ids to one-shot result slots.
type pendingTable struct {
	mu    sync.Mutex
	slots map[jsonrpc2.ID]chan *jsonrpc2.Response
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		slots: make(map[jsonrpc2.ID]chan *jsonrpc2.Response),
	}
}

func (p *pendingTable) add(id jsonrpc2.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.slots[id]; exists {
		return fmt.Errorf("request %v already pending", id)
	}
	p.slots[id] = make(chan *jsonrpc2.Response, 1)
	return nil
}

func (p *pendingTable) get(id jsonrpc2.ID) (chan *jsonrpc2.Response, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, ok := p.slots[id]
	return slot, ok
}

func (p *pendingTable) remove(id jsonrpc2.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.slots, id)
}

// deliver hands resp to the slot waiting on its id. It reports false when no
// request is pending under that id or the slot is already filled.
func (p *pendingTable) deliver(resp *jsonrpc2.Response) bool {
	p.mu.Lock()
	slot, ok := p.slots[resp.ID()]
	p.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case slot <- resp:
		return true
	default:
		return false
	}
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.slots)
}
