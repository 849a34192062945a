package demotools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type employee struct {
	Balance int      `json:"balance"`
	History []string `json:"history"`
}

// Directory is the in-memory employee leave table.
type Directory struct {
	mu        sync.Mutex
	employees map[string]*employee
}

// NewDirectory returns a directory seeded with the sample employees.
func NewDirectory() *Directory {
	return &Directory{employees: map[string]*employee{
		"Raghu":  {Balance: 18, History: []string{"2025-05-13", "2025-07-03"}},
		"Jake":   {Balance: 15, History: []string{"2025-04-01", "2025-04-02", "2025-04-03", "2025-04-04", "2025-07-03"}},
		"Corbin": {Balance: 17, History: []string{"2025-01-10", "2025-04-02", "2025-03-03"}},
		"Steve":  {Balance: 20, History: []string{}},
	}}
}

// Balance reports the remaining leave days of id.
func (d *Directory) Balance(id string) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.employees[id]
	if !ok {
		return map[string]any{"employee_id": id, "balance": nil, "error": "Employee ID not found."}
	}
	return map[string]any{
		"employee_id": id,
		"balance":     e.Balance,
		"message":     fmt.Sprintf("%s has %d leave days remaining.", id, e.Balance),
	}
}

// Apply books the comma-separated dates for id if the balance allows it.
func (d *Directory) Apply(id, dates string) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.employees[id]
	if !ok {
		return map[string]any{"employee_id": id, "success": false, "error": "Employee ID not found."}
	}

	var requested []string
	for _, date := range strings.Split(dates, ",") {
		if date = strings.TrimSpace(date); date != "" {
			requested = append(requested, date)
		}
	}
	if len(requested) == 0 {
		return map[string]any{"employee_id": id, "success": false, "error": "No valid dates provided."}
	}
	if e.Balance < len(requested) {
		return map[string]any{
			"employee_id":       id,
			"success":           false,
			"requested_days":    len(requested),
			"available_balance": e.Balance,
			"error": fmt.Sprintf("Insufficient leave balance. You requested %d day(s) but have only %d.",
				len(requested), e.Balance),
		}
	}

	e.Balance -= len(requested)
	e.History = append(e.History, requested...)
	return map[string]any{
		"employee_id":       id,
		"success":           true,
		"applied_dates":     requested,
		"days_applied":      len(requested),
		"remaining_balance": e.Balance,
		"message":           fmt.Sprintf("Leave applied for %d day(s). Remaining balance: %d.", len(requested), e.Balance),
	}
}

// History lists the leave dates taken by id.
func (d *Directory) History(id string) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.employees[id]
	if !ok {
		return map[string]any{"employee_id": id, "total_leaves_taken": 0, "leave_dates": []string{}, "error": "Employee ID not found."}
	}
	dates := append([]string{}, e.History...)
	summary := "No leaves taken."
	if len(dates) > 0 {
		summary = strings.Join(dates, ", ")
	}
	return map[string]any{
		"employee_id":        id,
		"total_leaves_taken": len(dates),
		"leave_dates":        dates,
		"message":            fmt.Sprintf("Leave history for %s: %s", id, summary),
	}
}

// List returns every employee with their balance and history.
func (d *Directory) List() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.employees))
	for name := range d.employees {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]any, len(names))
	for _, name := range names {
		e := d.employees[name]
		out[name] = employee{Balance: e.Balance, History: append([]string{}, e.History...)}
	}
	return map[string]any{
		"employees":       out,
		"total_employees": len(out),
		"message":         "Current employee leave database",
	}
}
