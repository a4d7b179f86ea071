/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const alertsPath = "../../deploy/prometheus/alerts.yml"

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

func loadAlerts(t *testing.T) []alertGroup {
	t.Helper()
	data, err := os.ReadFile(alertsPath)
	if err != nil {
		t.Skipf("Skipping test: alerts file not found at %s", alertsPath)
	}
	var cfg struct {
		Groups []alertGroup `yaml:"groups"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Invalid YAML in alerts.yml: %v", err)
	}
	if len(cfg.Groups) == 0 {
		t.Fatal("alerts.yml 'groups' is empty")
	}
	return cfg.Groups
}

func TestAlertLabels(t *testing.T) {
	for _, group := range loadAlerts(t) {
		for _, alert := range group.Rules {
			if alert.Alert == "" {
				continue
			}
			if _, ok := alert.Labels["severity"]; !ok {
				t.Errorf("Alert '%s' missing 'severity' label", alert.Alert)
			}
			if _, ok := alert.Annotations["summary"]; !ok {
				t.Errorf("Alert '%s' missing 'summary' annotation", alert.Alert)
			}
		}
	}
}

// TestAlertMetricsExist verifies every playlistd_ metric referenced by an
// alert is declared in metrics.go.
func TestAlertMetricsExist(t *testing.T) {
	data, err := os.ReadFile("metrics.go")
	if err != nil {
		t.Fatalf("Failed to read metrics.go: %v", err)
	}
	declared := string(data)

	for _, group := range loadAlerts(t) {
		for _, alert := range group.Rules {
			for _, field := range strings.FieldsFunc(alert.Expr, func(r rune) bool {
				return !(r == '_' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
			}) {
				if !strings.HasPrefix(field, "playlistd_") {
					continue
				}
				name := strings.TrimSuffix(field, "_bucket")
				if !strings.Contains(declared, `"`+name+`"`) {
					t.Errorf("Alert '%s' references undeclared metric %s", alert.Alert, name)
				}
			}
		}
	}
}
