package notifications

import (
	"errors"
	"html/template"
	"strings"
)

type templateData struct {
	ProductName string
	PlanName    string
	EndsAt      string
	Days        string
	Amount      string
	OrderID     string
	SupportURL  string
}

var emailTemplates = template.Must(template.New("notifications").Parse(`
{{define "expiring_soon"}}
<p>Hi,</p>
<p>Your <strong>{{.ProductName}}</strong> subscription on the {{.PlanName}} plan
expires on {{.EndsAt}}{{if .Days}} ({{.Days}} days from now){{end}}.</p>
<p>Renew before then to keep your access without interruption.</p>
{{end}}

{{define "past_due"}}
<p>Hi,</p>
<p>We could not collect the latest payment for your <strong>{{.ProductName}}</strong>
subscription on the {{.PlanName}} plan.</p>
<p>Please update your payment method. We will retry the charge automatically,
and your subscription stays active in the meantime.</p>
{{if .SupportURL}}<p><a href="{{.SupportURL}}">Update payment method</a></p>{{end}}
{{end}}

{{define "subscription_canceled"}}
<p>Hi,</p>
<p>Your <strong>{{.ProductName}}</strong> subscription has been canceled.
You will not be charged again.</p>
<p>If this was a mistake, you can start a new subscription at any time.</p>
{{end}}

{{define "order_receipt"}}
<p>Hi,</p>
<p>Thanks for your purchase from <strong>{{.ProductName}}</strong>.</p>
<p>Order <code>{{.OrderID}}</code>{{if .Amount}} for {{.Amount}}{{end}} has been
completed. This email is your receipt.</p>
{{end}}

{{define "order_refunded"}}
<p>Hi,</p>
<p>Your order <code>{{.OrderID}}</code> from <strong>{{.ProductName}}</strong>
has been refunded{{if .Amount}} ({{.Amount}}){{end}}.</p>
<p>Depending on your bank, the money may take a few business days to arrive.</p>
{{end}}
`))

func renderTemplate(name string, data templateData) (string, error) {
	var sb strings.Builder
	if err := emailTemplates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", errors.Join(ErrFailedToRender, err)
	}
	return strings.TrimSpace(sb.String()), nil
}
