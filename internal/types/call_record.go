package types

// CallRecord represents an ended call for DynamoDB persistence
type CallRecord struct {
	DateKey    string   `json:"dateKey" dynamodbav:"DateKey"` // YYYY-MM-DD (partition key)
	CallID     string   `json:"callId" dynamodbav:"CallID"`   // sort key
	Direction  string   `json:"direction" dynamodbav:"Direction"`
	From       string   `json:"from" dynamodbav:"From"`
	To         string   `json:"to" dynamodbav:"To"`
	AgentID    string   `json:"agentId" dynamodbav:"AgentID"` // last owning agent
	HandledBy  []string `json:"handledBy" dynamodbav:"HandledBy"`
	CreatedAt  string   `json:"createdAt" dynamodbav:"CreatedAt"`   // RFC3339
	AnsweredAt string   `json:"answeredAt" dynamodbav:"AnsweredAt"` // RFC3339
	EndedAt    string   `json:"endedAt" dynamodbav:"EndedAt"`       // RFC3339
	WaitTime   float64  `json:"waitTime" dynamodbav:"WaitTime"`     // seconds before answer
	TalkTime   float64  `json:"talkTime" dynamodbav:"TalkTime"`     // seconds after answer
	EndReason  string   `json:"endReason" dynamodbav:"EndReason"`
	Revisions  uint64   `json:"revisions" dynamodbav:"Revisions"`
	Abandoned  bool     `json:"abandoned" dynamodbav:"Abandoned"` // ended without an agent
}
