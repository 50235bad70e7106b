package home

import (
	"encoding/json"
	"time"
)

// Contract describes the active Early-Morning route. It is published so a restarted controller (or another consumer)
// can pick up where the route left off.
type Contract struct {
	Route     string `json:"route"`
	Start     string `json:"start"`
	Until     string `json:"until"`
	Active    bool   `json:"active"`
	UpdatedAt string `json:"updated_at"`
	Version   int    `json:"version"`
}

const contractVersion = 1

func (c *Controller) contract() Contract {
	route, _ := c.get(keyEMRoute)
	start, _ := c.get(keyEMStart)
	until, _ := c.get(keyEMUntil)
	return Contract{
		Route:     route,
		Start:     start,
		Until:     until,
		Active:    c.flag(keyEMActive),
		UpdatedAt: c.now().Format(time.RFC3339),
		Version:   contractVersion,
	}
}

// publishContract sends the current contract to the contract cache. Failures are logged and otherwise ignored.
func (c *Controller) publishContract() {
	if c.contractCache == nil {
		return
	}
	payload, err := json.Marshal(c.contract())
	if err != nil {
		c.logger.Warn("failed to encode early-morning contract", "err", err)
		return
	}
	if err = c.contractCache.Publish(c.cfg.ContractTopic+"/em/contract", payload); err != nil {
		c.logger.Warn("failed to publish early-morning contract", "err", err)
	}
}
