package market

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// DecodeChainPayload 将交易所返回的期权链 JSON 解析为 Snapshot。
// 负载结构参照 NSE option-chain 接口：records.underlyingValue 为标的价，
// records.data 为按行权价展开的 CE/PE 数组。
func DecodeChainPayload(raw []byte, at time.Time) (*Snapshot, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode chain: 空负载")
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("decode chain: 非法 JSON")
	}
	root := gjson.ParseBytes(raw)
	underlying := root.Get("records.underlyingValue").Float()
	if underlying <= 0 {
		return nil, fmt.Errorf("decode chain: 缺少标的价")
	}
	data := root.Get("records.data")
	if !data.IsArray() {
		return nil, fmt.Errorf("decode chain: records.data 不是数组")
	}
	snap := &Snapshot{Timestamp: at, Underlying: underlying}
	data.ForEach(func(_, item gjson.Result) bool {
		strike := item.Get("strikePrice").Float()
		if strike <= 0 {
			return true
		}
		row := ChainRow{Strike: strike}
		if ce := item.Get("CE"); ce.Exists() {
			row.CallOI = ce.Get("openInterest").Float()
			row.CallChangeOI = ce.Get("changeinOpenInterest").Float()
			row.CallVolume = ce.Get("totalTradedVolume").Float()
			row.CallLTP = ce.Get("lastPrice").Float()
		}
		if pe := item.Get("PE"); pe.Exists() {
			row.PutOI = pe.Get("openInterest").Float()
			row.PutChangeOI = pe.Get("changeinOpenInterest").Float()
			row.PutVolume = pe.Get("totalTradedVolume").Float()
			row.PutLTP = pe.Get("lastPrice").Float()
		}
		snap.Rows = append(snap.Rows, row)
		return true
	})
	if len(snap.Rows) == 0 {
		return nil, fmt.Errorf("decode chain: 快照无有效行")
	}
	return snap, nil
}
