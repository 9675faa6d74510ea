package econ

import "fmt"

// TransportLossRate is the fraction of a shipment lost per hop.
const TransportLossRate = 0.02

// diffuseTrade runs one Laplacian diffusion step per good over the trade
// partnership graph: flow = −rate·L·surplus with L = D − A. Implemented
// edge-wise so each directed shipment can be charged its transport loss.
// Populates Available, Exports, Imports, and TransportLoss per region and
// returns the total volume shipped.
func diffuseTrade(regions []Region, rate float64) float64 {
	n := len(regions)
	totalVolume := 0.0

	for i := range regions {
		regions[i].Exports = 0
		regions[i].Imports = 0
		regions[i].TransportLoss = 0
		for g := 0; g < NumGoods; g++ {
			regions[i].Available[g] = regions[i].Production[g]
		}
	}

	surplus := make([]float64, n)
	for g := 0; g < NumGoods; g++ {
		for i := range regions {
			surplus[i] = regions[i].Production[g] - regions[i].Demand[g]
		}
		// Each undirected edge is visited once, from its lower-index endpoint;
		// goods flow from the higher-surplus side to the lower.
		for i := range regions {
			for _, pj := range regions[i].TradePartners {
				j := int(pj)
				if j <= i {
					continue
				}
				grad := surplus[i] - surplus[j]
				from, to := i, j
				flow := rate * grad
				if flow < 0 {
					from, to = j, i
					flow = -flow
				}
				if flow == 0 {
					continue
				}
				// Never ship more than the exporter has on hand.
				if flow > regions[from].Available[g] {
					flow = regions[from].Available[g]
				}
				loss := flow * TransportLossRate
				regions[from].Available[g] -= flow
				regions[to].Available[g] += flow - loss
				regions[from].Exports += flow
				regions[to].Imports += flow - loss
				regions[to].TransportLoss += loss
				totalVolume += flow
			}
		}
	}
	return totalVolume
}

// CheckTradeConservation verifies that global exports equal global imports
// plus transport loss, within 1% of the larger side. Strict-mode invariant.
func CheckTradeConservation(regions []Region) error {
	var exports, imports, loss float64
	for i := range regions {
		exports += regions[i].Exports
		imports += regions[i].Imports
		loss += regions[i].TransportLoss
	}
	diff := exports - imports - loss
	if diff < 0 {
		diff = -diff
	}
	limit := exports
	if imports > limit {
		limit = imports
	}
	if diff > 0.01*limit && diff > 1e-9 {
		return fmt.Errorf("trade conservation violated: exports=%.4f imports=%.4f loss=%.4f", exports, imports, loss)
	}
	return nil
}
