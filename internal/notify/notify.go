// Package notify publishes a run summary over MQTT so downstream monitoring
// can alert on discrepancies without parsing the workbook. Publishing is
// best effort: a broker outage never fails an otherwise good run.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"chartaudit/internal/reconcile"
)

// Summary is the JSON payload published after a completed run.
type Summary struct {
	Category           string `json:"category"`
	ComparisonRows     int    `json:"comparison_rows"`
	Mismatches         int    `json:"mismatches"`
	MissingInChart     int    `json:"missing_in_chart"`
	MissingInReference int    `json:"missing_in_reference"`
	ReportPath         string `json:"report_path"`
	CompletedAt        string `json:"completed_at"`
}

type Publisher struct {
	client mqtt.Client
	topic  string
}

// New connects to the broker. An empty broker URL disables publishing and
// returns a nil Publisher, which all methods tolerate.
func New(broker, topic, clientID string) (*Publisher, error) {
	if broker == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("notify: connect %s: %w", broker, token.Error())
	}
	return &Publisher{client: client, topic: topic}, nil
}

// PublishSummary sends the run result. Nil receivers are a no-op.
func (p *Publisher) PublishSummary(rep reconcile.Report, reportPath string) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(Summary{
		Category:           string(rep.Category),
		ComparisonRows:     len(rep.Rows),
		Mismatches:         rep.Mismatches,
		MissingInChart:     rep.MissingInChart,
		MissingInReference: rep.MissingInReference,
		ReportPath:         reportPath,
		CompletedAt:        time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("notify: encode summary: %w", err)
	}
	if token := p.client.Publish(p.topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("notify: publish to %s: %w", p.topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker. Nil receivers are a no-op.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(250)
}
