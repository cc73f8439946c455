package domain

import (
	"sort"
	"time"
)

// ReservationStatus 是库存预占的生命周期状态，committed 与 released 为终态。
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

func (s ReservationStatus) Terminal() bool {
	return s == ReservationCommitted || s == ReservationReleased
}

// StockReservation 是针对单个 SKU 的一次临时占用。
type StockReservation struct {
	ID         string
	GroupID    string
	CartID     string
	SKU        string
	Quantity   int
	Status     ReservationStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ResolvedAt *time.Time
}

// IsExpired 表示 held 预占已越过过期时间。
// 过期时间本身仍在有效期内；TTL 为 0（ExpiresAt 不晚于 CreatedAt）的预占自创建起即过期。
func (r *StockReservation) IsExpired(now time.Time) bool {
	if r.Status != ReservationHeld {
		return false
	}
	return now.After(r.ExpiresAt) || !r.ExpiresAt.After(r.CreatedAt)
}

// Line 是一次预占请求中的一行。
type Line struct {
	SKU      string
	Quantity int
}

// MergeLines 按 SKU 合并数量并按 SKU 升序返回，保证所有事务以相同顺序加行锁。
func MergeLines(lines []Line) []Line {
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		totals[l.SKU] += l.Quantity
	}
	merged := make([]Line, 0, len(totals))
	for sku, qty := range totals {
		merged = append(merged, Line{SKU: sku, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].SKU < merged[j].SKU })
	return merged
}

// ReservationGroup 是一次 Reserve 调用创建的全部预占。
type ReservationGroup struct {
	ID           string
	CartID       string
	ExpiresAt    time.Time
	Reservations []StockReservation
}

// Lapsed 表示该组已不能被提交：有预占被释放，或 held 预占已过期。
func (g *ReservationGroup) Lapsed(now time.Time) bool {
	for i := range g.Reservations {
		r := &g.Reservations[i]
		if r.Status == ReservationReleased || r.IsExpired(now) {
			return true
		}
	}
	return false
}

// AllHeld 表示组内所有预占仍处于 held。
func (g *ReservationGroup) AllHeld() bool {
	for _, r := range g.Reservations {
		if r.Status != ReservationHeld {
			return false
		}
	}
	return len(g.Reservations) > 0
}
