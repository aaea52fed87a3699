package builtin

import (
	"apexflow/internal/tool"
)

// RegisterAll 注册全部内置工具
func RegisterAll(r *tool.Router) {
	r.Register(NewFetchTool())
	r.Register(NewCalcTool())
}
