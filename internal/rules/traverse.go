package rules

// visitObjects 深度优先遍历JSON值树，对每个对象节点调用一次visit
// 所有递归下降规则共用，避免每条规则重复实现遍历
func visitObjects(node interface{}, visit func(obj map[string]interface{})) {
	switch v := node.(type) {
	case map[string]interface{}:
		visit(v)
		for _, child := range v {
			visitObjects(child, visit)
		}
	case []interface{}:
		for _, child := range v {
			visitObjects(child, visit)
		}
	}
}

// asFloat 宽容地把JSON值转为数字
// 字段解析失败不是错误，调用方跳过该字段即可
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
