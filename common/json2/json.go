package json2

import "encoding/json"

// ToPrettyJSON 将对象格式化为带缩进的 JSON，用于日志和测试输出
func ToPrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
