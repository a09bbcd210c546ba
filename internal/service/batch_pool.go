package service

import "dorm-track/backend/internal/model"

// capacityPool 单个批次内的房间容量镜像
// 每个批次从候选房间重新构建，批次结束即丢弃
type capacityPool struct {
	slots []*poolSlot
	index map[string]*poolSlot
}

type poolSlot struct {
	room      model.Room
	occupancy int
	remaining int
}

func newCapacityPool(rooms []model.Room) *capacityPool {
	p := &capacityPool{
		slots: make([]*poolSlot, 0, len(rooms)),
		index: make(map[string]*poolSlot, len(rooms)),
	}
	for _, r := range rooms {
		if !r.Assignable() {
			continue
		}
		slot := &poolSlot{room: r, occupancy: r.CurrentOccupancy, remaining: r.SpareCapacity()}
		p.slots = append(p.slots, slot)
		p.index[r.RoomID] = slot
	}
	return p
}

// next 返回入住数最低、仍有余量的房间，入住数相同时取房间 ID 最小者
// 没有任何余量时返回 nil
func (p *capacityPool) next() *model.Room {
	var best *poolSlot
	for _, slot := range p.slots {
		if slot.remaining <= 0 {
			continue
		}
		if best == nil ||
			slot.occupancy < best.occupancy ||
			(slot.occupancy == best.occupancy && slot.room.RoomID < best.room.RoomID) {
			best = slot
		}
	}
	if best == nil {
		return nil
	}
	room := best.room
	room.CurrentOccupancy = best.occupancy
	return &room
}

// consume 分配成功后推进镜像
func (p *capacityPool) consume(roomID string) {
	if slot, ok := p.index[roomID]; ok && slot.remaining > 0 {
		slot.occupancy++
		slot.remaining--
	}
}

// exhaust 数据库判定房间已满或不可用时，将其移出本批次
func (p *capacityPool) exhaust(roomID string) {
	if slot, ok := p.index[roomID]; ok {
		slot.remaining = 0
	}
}

// remaining 镜像中的剩余床位总数
func (p *capacityPool) remaining() int {
	total := 0
	for _, slot := range p.slots {
		total += slot.remaining
	}
	return total
}
