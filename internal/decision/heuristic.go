package decision

import (
	"premia/internal/market"
)

// HeuristicSignal 是模型未就绪时的确定性规则信号。
// 七项检查在多空两侧累计票数，净强度 <2 时强制中性，上限 10。
//
// 卖方视角：Put 侧的量能/持仓占优视为下方有支撑（看涨），反之看跌。
func HeuristicSignal(snap *market.Snapshot, atmStrike float64) (sig int, strength float64) {
	if snap == nil {
		return 0, 0
	}
	atm, ok := snap.Row(atmStrike)
	if !ok {
		return 0, 0
	}

	score := 0.0

	// 1. 成交量占优
	if atm.PutVolume > 1.5*atm.CallVolume {
		score += 2
	} else if atm.CallVolume > 1.5*atm.PutVolume {
		score -= 2
	}

	// 2. 持仓量占优
	if atm.PutOI > 1.5*atm.CallOI {
		score += 2
	} else if atm.CallOI > 1.5*atm.PutOI {
		score -= 2
	}

	// 3. 持仓变化确认
	if atm.PutChangeOI > 0 && atm.PutChangeOI > atm.CallChangeOI {
		score += 1
	} else if atm.CallChangeOI > 0 && atm.CallChangeOI > atm.PutChangeOI {
		score -= 1
	}

	// 4. PCR 确认
	pcr := safeDiv(atm.PutOI, atm.CallOI, 1)
	if pcr > 1.3 {
		score += 1
	} else if pcr < 0.7 && pcr > 0 {
		score -= 1
	}

	// 5. 量比趋势确认
	volRatio := safeDiv(atm.PutVolume, atm.CallVolume, 1)
	if volRatio > 1.2 {
		score += 1
	} else if volRatio < 0.8 {
		score -= 1
	}

	// 6. 时段抑制：开盘收盘噪声大，各降一票
	flags := market.Session(snap.Timestamp)
	if flags.Opening || flags.Closing {
		if score > 0 {
			score -= 1
		} else if score < 0 {
			score += 1
		}
	}

	// 7. 价比确认
	priceRatio := safeDiv(atm.CallLTP, atm.PutLTP, 1)
	if priceRatio > 1.3 {
		score += 1
	} else if priceRatio < 0.7 {
		score -= 1
	}

	strength = score
	if strength < 0 {
		strength = -strength
	}
	if strength > 10 {
		strength = 10
	}
	if strength < 2 {
		return 0, strength
	}
	if score > 0 {
		return 1, strength
	}
	return -1, strength
}

func safeDiv(num, den, fallback float64) float64 {
	if den <= 0 {
		return fallback
	}
	return num / den
}
