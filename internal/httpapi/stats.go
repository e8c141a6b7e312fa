package httpapi

import (
	"os"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"wsrouter/internal/registry"
)

// registrationStats is the per-registration line of the /stats response.
type registrationStats struct {
	ID          string        `json:"id"`
	Kind        registry.Kind `json:"kind"`
	Connections int           `json:"connections"`
	Destroy     bool          `json:"destroy"`
}

// statsResponse is the full JSON document returned by GET /stats.
type statsResponse struct {
	Registrations []registrationStats `json:"registrations"`
	TotalMem      uint64              `json:"total_mem"`
	UsedMem       uint64              `json:"used_mem"`
	ProcMem       int64               `json:"proc_mem"`
}

// buildStatsResponse combines the registry snapshot with gopsutil-sourced
// memory figures. proc_mem is -1 when gopsutil cannot read this process's
// own memory info (spec.md §4.5).
func buildStatsResponse(reg *registry.Registry) statsResponse {
	snap := reg.Snapshot()
	regs := make([]registrationStats, 0, len(snap))
	for _, s := range snap {
		regs = append(regs, registrationStats{
			ID:          s.ID,
			Kind:        s.Kind,
			Connections: s.Connections,
			Destroy:     s.Destroyed,
		})
	}

	resp := statsResponse{
		Registrations: regs,
		ProcMem:       -1,
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.TotalMem = vm.Total
		resp.UsedMem = vm.Used
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil && info != nil {
			resp.ProcMem = int64(info.RSS)
		}
	}

	return resp
}
