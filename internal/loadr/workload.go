// Package loadr generates synthetic gate traffic: registrations, logins (good and
// bad), permission requests and messages, plus bursts that should trip the
// firewall and intrusion heuristics.
package loadr

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Workload describes a traffic run, parsed from YAML.
type Workload struct {
	Seed        uint64 `yaml:"seed"`
	Users       int    `yaml:"users"`
	TotalOps    int    `yaml:"totalOps"`
	Concurrency int    `yaml:"concurrency"`
	Output      string `yaml:"output"`

	// Snapguard is the config file used by "loadr run".
	Snapguard string `yaml:"snapguard"`

	Mix struct {
		Login      float64 `yaml:"login"`
		BadLogin   float64 `yaml:"bad_login"`
		Permission float64 `yaml:"permission"`
		Message    float64 `yaml:"message"`
	} `yaml:"mix"`

	Attack struct {
		// Bursts of failed logins from one IP against one account.
		BruteForce int `yaml:"brute_force"`
		BurstSize  int `yaml:"burst_size"`
		// Fraction of permission/message ops flagged as unusual or oversized.
		Anomalous float64 `yaml:"anomalous"`
	} `yaml:"attack"`
}

// ReadWorkload parses and normalizes a workload file.
func ReadWorkload(path string) (Workload, error) {
	var w Workload
	data, err := os.ReadFile(path)
	if err != nil {
		return w, err
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parse %s: %w", path, err)
	}
	w.normalize()
	return w, nil
}

func (w *Workload) normalize() {
	if w.Users <= 0 {
		w.Users = 10
	}
	if w.TotalOps < 0 {
		w.TotalOps = 0
	}
	if w.Concurrency <= 0 {
		w.Concurrency = 4
	}
	if w.Attack.BurstSize <= 0 {
		w.Attack.BurstSize = 6
	}

	m := &w.Mix
	tot := m.Login + m.BadLogin + m.Permission + m.Message
	if tot <= 0 {
		m.Login, m.BadLogin, m.Permission, m.Message = 0.4, 0.1, 0.25, 0.25
		tot = 1
	}
	m.Login /= tot
	m.BadLogin /= tot
	m.Permission /= tot
	m.Message /= tot
}
