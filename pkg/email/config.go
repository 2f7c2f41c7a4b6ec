package email

// Config holds outbound email configuration. The Postmark tokens may be
// left empty in development, where DevSender replaces the real client.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"BILLING_SENDER_EMAIL,required"`
	SupportEmail         string `env:"BILLING_SUPPORT_EMAIL,required"`
}
