package mcpserver

import "encoding/json"

// Locally-declared tool definitions. Only the declarations live here;
// execution still routes through the orchestrator, except read_file,
// which the loop services internally and which is deliberately not
// exposed to the client.

type toolDef struct {
	name        string
	description string
	schema      json.RawMessage
}

func localTools() []toolDef {
	return []toolDef{
		{
			name:        "get_query_profile",
			description: "获取指定查询的执行 profile 摘要。",
			schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query_id": {"type": "string", "description": "查询 ID"}
				},
				"required": ["query_id"]
			}`),
		},
		{
			name:        "analyze_load_profile",
			description: "两阶段导入 profile 分析。提供 profile 文件路径或内容。",
			schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"file_path": {"type": "string", "description": "profile 文件路径"},
					"profile_content": {"type": "string", "description": "profile 文本内容"}
				}
			}`),
		},
		{
			name:        "check_disk_io",
			description: "检查 BE 节点磁盘 IO 利用率。",
			schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"start_time": {"type": "string", "description": "起始时间，相对(1h)或 ISO-8601"},
					"end_time": {"type": "string", "description": "结束时间"},
					"be_addresses": {
						"type": "array",
						"items": {"type": "string"},
						"description": "BE 节点地址，缺省检查全部"
					}
				},
				"required": ["start_time", "end_time"]
			}`),
		},
	}
}

// marshalSchema renders a catalogue tool's input schema, defaulting to
// an open object when the orchestrator sent none.
func marshalSchema(schema map[string]interface{}) []byte {
	if len(schema) == 0 {
		return []byte(`{"type":"object","properties":{}}`)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return []byte(`{"type":"object","properties":{}}`)
	}
	return raw
}
