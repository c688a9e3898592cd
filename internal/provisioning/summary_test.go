package provisioning

import (
	"testing"

	"github.com/EternisAI/silo-provisioner/internal/secretgen"
	"github.com/EternisAI/silo-provisioner/internal/tokenvault"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	entries := []Entry{
		{
			Name: "Payroll App",
			Kind: KindOK,
			Credentials: &secretgen.Credentials{
				Username: "payrollapp_apps",
				Password: "payrollappXy1!",
				Email:    "payrollapp@example.local",
			},
			Responses: Responses{
				TokenGroup: &tokenvault.TokenGroup{Name: "payrollapp_tgroup"},
				Templates:  []tokenvault.Template{{Name: "payrollapp_templateclear"}, {Name: "payrollapp_templatedigit"}},
			},
		},
		{Name: "Broken", Kind: KindKeyCreationFailed},
	}

	want := SummaryHeader +
		"\nApp: Payroll App\n" +
		"  Username : payrollapp_apps\n" +
		"  Password : payrollappXy1!\n" +
		"  Email    : payrollapp@example.local\n" +
		"  Tenant   : payrollapp_tgroup\n" +
		"  Templates: payrollapp_templateclear, payrollapp_templatedigit\n"

	assert.Equal(t, want, Summarize(FlavorApps, entries))
}

func TestSummarizeNoSuccess(t *testing.T) {
	assert.Equal(t, NoSummary, Summarize(FlavorApps, nil))
	assert.Equal(t, NoSummary, Summarize(FlavorClients, []Entry{{Name: "x", Kind: KindUnexpectedFailure}}))
}
