package chat

import "time"

// Snapshot 是会话在某一时刻的只读视图，供 HTTP 层序列化。
type Snapshot struct {
	ID         string    `json:"id"`
	MaxHistory int       `json:"maxHistory"`
	Turns      []Turn    `json:"turns"`
	CreatedAt  time.Time `json:"createdAt"`
}
