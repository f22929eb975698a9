package ecs

import "sync"

type commandOp uint8

const (
	attachCommand commandOp = iota
	detachCommand
	despawnCommand
)

type command struct {
	op        commandOp
	entity    EntityID
	component Component
	typ       ComponentType
}

// CommandBuffer queues structural changes made while the world is iterating.
// The queue is applied in order at the next flush point, before any system
// runs. It is safe for concurrent use.
type CommandBuffer struct {
	mu       sync.Mutex
	commands []command
}

func (b *CommandBuffer) Attach(id EntityID, c Component) {
	b.push(command{op: attachCommand, entity: id, component: c})
}

func (b *CommandBuffer) Detach(id EntityID, t ComponentType) {
	b.push(command{op: detachCommand, entity: id, typ: t})
}

func (b *CommandBuffer) Despawn(id EntityID) {
	b.push(command{op: despawnCommand, entity: id})
}

func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commands)
}

func (b *CommandBuffer) push(c command) {
	b.mu.Lock()
	b.commands = append(b.commands, c)
	b.mu.Unlock()
}

// drain hands back the queued commands and resets the buffer.
func (b *CommandBuffer) drain() []command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.commands
	b.commands = nil
	return out
}
