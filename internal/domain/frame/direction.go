package frame

// Direction 帧的传输方向
type Direction int

const (
	// WallboxToController 充电桩到中央系统
	WallboxToController Direction = iota
	// ControllerToWallbox 中央系统到充电桩
	ControllerToWallbox
)

// String 实现Stringer接口，与审计日志的方向标签保持一致
func (d Direction) String() string {
	switch d {
	case WallboxToController:
		return "wallbox->controller"
	case ControllerToWallbox:
		return "controller->wallbox"
	default:
		return "unknown"
	}
}

// Opposite 返回相反方向
func (d Direction) Opposite() Direction {
	if d == WallboxToController {
		return ControllerToWallbox
	}
	return WallboxToController
}
