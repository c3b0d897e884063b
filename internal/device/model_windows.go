//go:build windows
// +build windows

package device

import (
	"fmt"
	"strings"

	"github.com/yusufpapurcu/wmi"
)

// Model identifies the machine.
type Model struct {
	Manufacturer string `json:"manufacturer"`
	Name         string `json:"model"`
}

// IsAsus reports whether the manufacturer string names the vendor whose
// ATK driver and keyboard this agent speaks to.
func (m Model) IsAsus() bool {
	return strings.Contains(strings.ToUpper(m.Manufacturer), "ASUS")
}

// QueryModel reads Win32_ComputerSystem through WMI.
func QueryModel() (Model, error) {
	type Win32_ComputerSystem struct {
		Manufacturer string
		Model        string
	}
	var dst []Win32_ComputerSystem
	q := wmi.CreateQuery(&dst, "")
	if err := wmi.Query(q, &dst); err != nil {
		return Model{}, fmt.Errorf("query computer system: %w", err)
	}
	if len(dst) == 0 {
		return Model{}, fmt.Errorf("query computer system: no rows")
	}
	return Model{
		Manufacturer: strings.TrimSpace(dst[0].Manufacturer),
		Name:         strings.TrimSpace(dst[0].Model),
	}, nil
}
