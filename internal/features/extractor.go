package features

import (
	"fmt"
	"math"
	"strings"

	"premia/internal/market"
)

// Extract 从当前快照与分钟级历史构造特征向量。
// 纯函数：不修改 history，不持有状态。known 为引擎当前的特征名全集，
// 其中未被本次计算覆盖的名字回填为 0，保证向量宽度稳定。
//
// 失败条件（返回 nil, err）：标的价/行权价非法、ATM 行缺失。
func Extract(snap *market.Snapshot, history []market.Snapshot, atmStrike float64, known []string) (*Vector, error) {
	if snap == nil {
		return nil, fmt.Errorf("features: 快照为空")
	}
	if snap.Underlying <= 0 || atmStrike <= 0 {
		return nil, fmt.Errorf("features: 标的价或行权价非法 underlying=%.2f atm=%.2f", snap.Underlying, atmStrike)
	}
	atm, ok := snap.Row(atmStrike)
	if !ok {
		return nil, fmt.Errorf("features: 快照缺少 ATM 行权价 %.0f", atmStrike)
	}

	v := NewVector()

	// 价格/行权价
	v.Set("underlying_price", snap.Underlying)
	v.Set("atm_strike", atmStrike)
	v.Set("strike_distance", snap.Underlying-atmStrike)

	// ATM 六字段
	v.Set("atm_call_oi", atm.CallOI)
	v.Set("atm_call_volume", atm.CallVolume)
	v.Set("atm_call_ltp", atm.CallLTP)
	v.Set("atm_put_oi", atm.PutOI)
	v.Set("atm_put_volume", atm.PutVolume)
	v.Set("atm_put_ltp", atm.PutLTP)

	// 三个比值（除零兜底）
	v.Set("pcr_oi", safeRatio(atm.PutOI, atm.CallOI, 1))
	v.Set("pcr_volume", safeRatio(atm.PutVolume, atm.CallVolume, 1))
	v.Set("call_put_price_ratio", safeRatio(atm.CallLTP, math.Max(atm.PutLTP, 0.01), 1))

	// 全链聚合
	totals := snap.Totals()
	v.Set("total_call_oi", totals.CallOI)
	v.Set("total_put_oi", totals.PutOI)
	v.Set("total_call_volume", totals.CallVolume)
	v.Set("total_put_volume", totals.PutVolume)

	// 时段特征
	flags := market.Session(snap.Timestamp)
	v.Set("hour", float64(snap.Timestamp.Hour()))
	v.Set("minute", float64(snap.Timestamp.Minute()))
	v.Set("time_of_day", float64(snap.Timestamp.Hour())+float64(snap.Timestamp.Minute())/60.0)
	v.Set("is_market_opening", boolFeature(flags.Opening))
	v.Set("is_market_closing", boolFeature(flags.Closing))
	v.Set("is_mid_session", boolFeature(flags.Mid))

	// 相对上一分钟（倒数第二个历史点）的 12 个变化特征
	if len(history) >= 2 {
		if prev, ok := history[len(history)-2].Row(atmStrike); ok {
			setChange(v, "call_oi", atm.CallOI, prev.CallOI)
			setChange(v, "put_oi", atm.PutOI, prev.PutOI)
			setChange(v, "call_volume", atm.CallVolume, prev.CallVolume)
			setChange(v, "put_volume", atm.PutVolume, prev.PutVolume)
			setChange(v, "call_ltp", atm.CallLTP, prev.CallLTP)
			setChange(v, "put_ltp", atm.PutLTP, prev.PutLTP)
		}
	}

	// 回填引擎已知但本次未计算的特征名，保持宽度稳定。
	for _, name := range known {
		if _, ok := v.Get(name); !ok {
			v.Set(name, 0)
		}
	}

	sanitize(v)
	return v, nil
}

func setChange(v *Vector, name string, cur, prev float64) {
	v.Set(name+"_change", cur-prev)
	if prev != 0 {
		v.Set(name+"_change_pct", (cur-prev)/prev*100)
	} else {
		v.Set(name+"_change_pct", 0)
	}
}

func safeRatio(num, den, fallback float64) float64 {
	if den <= 0 {
		return fallback
	}
	return num / den
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// sanitize 将 NaN/Inf 归零，再对高量级字段降尺度并夹紧边界，
// 保证模型输入数值良态。
func sanitize(v *Vector) {
	for _, name := range v.names {
		val := v.values[name]
		if math.IsNaN(val) || math.IsInf(val, 0) {
			val = 0
		}
		scale, lo, hi := boundsFor(name)
		val *= scale
		if val < lo {
			val = lo
		} else if val > hi {
			val = hi
		}
		v.values[name] = val
	}
}

// boundsFor 返回字段的缩放系数与夹紧区间。
// OI 以十万份、成交量以万份计，百分比变化限制在 ±100。
func boundsFor(name string) (scale, lo, hi float64) {
	switch {
	case name == "pcr_oi" || name == "pcr_volume" || name == "call_put_price_ratio":
		return 1, 0, 100
	case strings.HasSuffix(name, "_change_pct"):
		return 1, -100, 100
	case strings.Contains(name, "_oi"):
		return 1e-5, -1000, 1000
	case strings.Contains(name, "_volume"):
		return 1e-4, -1000, 1000
	case name == "underlying_price" || name == "atm_strike":
		return 1e-3, 0, 1000
	default:
		return 1, -1e6, 1e6
	}
}
