// Package demotools provides the sample tools served by the tool server:
// weather lookup, a calculator and employee leave management.
package demotools

import (
	"context"

	"github.com/jllopis/taskbridge/pkg/tool"
)

// Register adds every demo tool to reg. Leave tools operate on dir.
func Register(reg *tool.Registry, dir *Directory) []tool.Definition {
	employeeID := tool.Parameter{Name: "employee_id", Type: "string", Description: "The employee's ID or name", Required: true}
	return []tool.Definition{
		reg.Register("get_weather", "Get current weather for a location",
			func(_ context.Context, args map[string]any) (any, error) {
				return Weather(tool.StringArg(args, "location")), nil
			},
			tool.Parameter{Name: "location", Type: "string", Description: "City name to get weather for", Required: true}),
		reg.Register("calculate", "Evaluate an arithmetic expression",
			func(_ context.Context, args map[string]any) (any, error) {
				v, err := Evaluate(tool.StringArg(args, "expression"))
				if err != nil {
					return nil, err
				}
				return number(v), nil
			},
			tool.Parameter{Name: "expression", Type: "string", Description: "Mathematical expression to evaluate", Required: true}),
		reg.Register("get_leave_balance", "Check how many leave days are left for the employee",
			func(_ context.Context, args map[string]any) (any, error) {
				return dir.Balance(tool.StringArg(args, "employee_id")), nil
			},
			employeeID),
		reg.Register("apply_leave", "Apply leave for specific dates",
			func(_ context.Context, args map[string]any) (any, error) {
				return dir.Apply(tool.StringArg(args, "employee_id"), tool.StringArg(args, "leave_dates")), nil
			},
			employeeID,
			tool.Parameter{Name: "leave_dates", Type: "string", Description: "Comma-separated dates, e.g. 2025-04-17,2025-05-01", Required: true}),
		reg.Register("get_leave_history", "Get leave history for the employee",
			func(_ context.Context, args map[string]any) (any, error) {
				return dir.History(tool.StringArg(args, "employee_id")), nil
			},
			employeeID),
		reg.Register("list_employees", "List all employees and their current leave status",
			func(_ context.Context, _ map[string]any) (any, error) {
				return dir.List(), nil
			}),
	}
}

// Weather returns canned conditions for location.
func Weather(location string) map[string]any {
	return map[string]any{
		"temperature": 72,
		"condition":   "sunny",
		"location":    location,
	}
}
