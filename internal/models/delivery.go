package models

// InsuranceRecord 战局结束时暂存的投保损失，由延迟投递协作者异步消费
type InsuranceRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	TraderID  string `json:"trader_id"`
	Items     []Item `json:"items"`
	StagedAt  int64  `json:"staged_at"`
}

// MailMessage 待投递的站内信
type MailMessage struct {
	ID            string `json:"id"`
	SessionID     string `json:"session_id"`
	Sender        string `json:"sender"`
	MessageType   string `json:"message_type"`
	TextKey       string `json:"text_key"` // 本地化文本键
	Items         []Item `json:"items,omitempty"`
	ExpirySeconds int    `json:"expiry_seconds"`
	CreatedAt     int64  `json:"created_at"`
}

// 站内信类型
const (
	MessageTypeSystem    = "system"
	MessageTypeDelivery  = "delivery" // 运载工具/中转邮箱投递
	MessageTypeInsurance = "insurance"
	MessageTypeKiller    = "killer"   // 击杀者通报
	MessageTypeVictim    = "victim"   // 被击杀玩家的回应
	MessageTypeReward    = "reward"
)
