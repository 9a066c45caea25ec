// Package alerts converts stored trap events to the Prometheus alert model
// for downstream notification systems.
package alerts

import (
	"fmt"
	"strconv"
	"time"

	"github.com/geekxflood/triton/internal/storage"
	"github.com/prometheus/common/model"
)

// Converter builds Prometheus alerts from trap events.
type Converter struct {
	defaultLabels model.LabelSet
}

// NewConverter creates a converter with the standard label set.
func NewConverter() *Converter {
	return &Converter{
		defaultLabels: model.LabelSet{
			"alertname": "SNMPv1Trap",
			"service":   "triton-trap-receiver",
			"job":       "snmp-trap",
		},
	}
}

// ConvertEvent converts one stored trap event to a Prometheus alert.
func (c *Converter) ConvertEvent(event *storage.TrapEvent) (*model.Alert, error) {
	if event == nil {
		return nil, fmt.Errorf("event cannot be nil")
	}

	labels := model.LabelSet{
		"alertname":      model.LabelValue(fmt.Sprintf("SNMPv1Trap_%s", event.GenericName)),
		"source_ip":      model.LabelValue(event.SourceIP),
		"community":      model.LabelValue(event.Community),
		"enterprise_oid": model.LabelValue(event.EnterpriseOID),
		"agent_address":  model.LabelValue(event.AgentAddress),
		"generic_trap":   model.LabelValue(event.GenericName),
		"instance":       model.LabelValue(event.AgentAddress),
	}
	for name, value := range c.defaultLabels {
		if _, ok := labels[name]; !ok {
			labels[name] = value
		}
	}

	annotations := model.LabelSet{
		"summary": model.LabelValue(fmt.Sprintf("SNMPv1 %s trap from %s", event.GenericName, event.SourceIP)),
		"description": model.LabelValue(fmt.Sprintf(
			"SNMPv1 trap received from %s (community: %s, enterprise: %s, agent: %s)",
			event.SourceIP, event.Community, event.EnterpriseOID, event.AgentAddress,
		)),
		"specific_trap": model.LabelValue(strconv.FormatUint(uint64(event.SpecificTrap), 10)),
		"time_ticks":    model.LabelValue(strconv.FormatUint(uint64(event.TimeTicks), 10)),
		"received_at":   model.LabelValue(event.Timestamp.Format(time.RFC3339)),
	}

	if event.Variables != "" {
		annotations["variables"] = model.LabelValue(event.Variables)
	}

	return &model.Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    event.Timestamp,
	}, nil
}
