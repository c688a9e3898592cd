package provisioning

import (
	"fmt"
	"strings"
)

const (
	SummaryHeader = "=== Provisioning Summary ==="
	NoSummary     = "No successful provisioning to summarize."
)

// Summarize renders one block per successful entry. Passwords appear in plain text.
func Summarize(flavor Flavor, entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if !e.OK() {
			continue
		}
		if flavor == FlavorClients {
			writeClientBlock(&b, e)
		} else {
			writeAppBlock(&b, e)
		}
	}
	if b.Len() == 0 {
		return NoSummary
	}
	return SummaryHeader + b.String()
}

func writeAppBlock(b *strings.Builder, e Entry) {
	var username, password, email string
	if e.Credentials != nil {
		username, password, email = e.Credentials.Username, e.Credentials.Password, e.Credentials.Email
	}
	fmt.Fprintf(b, "\nApp: %s\n", e.Name)
	fmt.Fprintf(b, "  Username : %s\n", username)
	fmt.Fprintf(b, "  Password : %s\n", password)
	fmt.Fprintf(b, "  Email    : %s\n", email)
	fmt.Fprintf(b, "  Tenant   : %s\n", e.TenantName())
	fmt.Fprintf(b, "  Templates: %s\n", strings.Join(e.TemplateNames(), ", "))
}

func writeClientBlock(b *strings.Builder, e Entry) {
	r := e.Responses
	var key, token string
	if r.Key != nil {
		key = r.Key.Name
	}
	if r.RegistrationToken != nil {
		token = r.RegistrationToken.Token
	}
	fmt.Fprintf(b, "\nClient: %s\n", e.Name)
	fmt.Fprintf(b, "  Key       : %s\n", key)
	fmt.Fprintf(b, "  Profile   : %s\n", r.Profile.Ref())
	fmt.Fprintf(b, "  Reg token : %s\n", token)
	fmt.Fprintf(b, "  User set  : %s\n", r.UserSet.Ref())
	if r.ProcessSet != nil {
		fmt.Fprintf(b, "  Proc set  : %s\n", r.ProcessSet.Ref())
	}
	fmt.Fprintf(b, "  Policy    : %s\n", r.Policy.Ref())
}
