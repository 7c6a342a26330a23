package engine

import (
	"strconv"
	"time"
)

// TimeID 由时间生成可比较的标识（yymmddHHMMSS 十进制拼接）。
// 同一根 bar 上创建的订单共享同一个 ID 前缀，跨 bar 严格递增，
// 激活检测用它保证订单只能在创建 bar 之后的 bar 上成交。
func TimeID(t time.Time) int64 {
	id, err := strconv.ParseInt(t.Format("060102150405"), 10, 64)
	if err != nil {
		return t.Unix()
	}
	return id
}
