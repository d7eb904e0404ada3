package models

import "time"

// Message roles. Only these two appear in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Immutable once appended.
// Timestamp is an ISO-8601 string, set when the message is created.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewMessage returns a message stamped with the current UTC time.
func NewMessage(role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// UserProfile is a sparse set of attributes supplied per turn for
// personalization. Zero values mean "not provided"; the pipeline treats the
// profile as read-only context and never persists it itself.
type UserProfile struct {
	Age              int    `json:"age,omitempty"`
	IncomeRange      string `json:"income_range,omitempty"`
	MaritalStatus    string `json:"marital_status,omitempty"`
	EmploymentStatus string `json:"employment_status,omitempty"`
	Education        string `json:"education,omitempty"`
	Location         string `json:"location,omitempty"`
	FinancialGoals   string `json:"financial_goals,omitempty"`
	RiskTolerance    string `json:"risk_tolerance,omitempty"`
	Dependents       int    `json:"dependents,omitempty"`
	InvestmentExp    string `json:"investment_experience,omitempty"`
}

// Empty reports whether no attribute is set.
func (p *UserProfile) Empty() bool {
	if p == nil {
		return true
	}
	return p.Age == 0 && p.IncomeRange == "" && p.MaritalStatus == "" &&
		p.EmploymentStatus == "" && p.Education == "" && p.Location == "" &&
		p.FinancialGoals == "" && p.RiskTolerance == "" &&
		p.Dependents == 0 && p.InvestmentExp == ""
}

// User is a registered account. AuthSubject is the identity provider's
// stable subject identifier.
type User struct {
	ID          int64       `json:"user_id"`
	AuthSubject string      `json:"-"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone,omitempty"`
	Profile     UserProfile `json:"profile"`
	CreatedAt   time.Time   `json:"created_at"`
}
