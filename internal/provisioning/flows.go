package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/EternisAI/silo-provisioner/internal/keymanager"
	"github.com/EternisAI/silo-provisioner/internal/tokenvault"
	"github.com/EternisAI/silo-provisioner/internal/transport"
)

// Derived resource names. Every name hangs off the normalized root.
func KeyName(root string) string        { return root + "_keys" }
func TokenGroupName(root string) string { return root + "_tgroup" }
func CTEKeyName(root string) string     { return "ldt_" + root + "_keys" }
func ProfileName(root string) string    { return root + "_client" }
func UserSetName(root string) string    { return root + "_authorized_users" }
func ProcessSetName(root string) string { return root + "_authorized_process" }
func PolicyName(root string) string     { return root + "_Database" }

func displayName(name string) string {
	return strings.TrimSpace(name)
}

// provisionApp creates the identity and key in the key manager, mirrors both in the token
// vault, then grants permissions and builds the token group and its templates. Each step
// consumes what the previous one produced, so the first failure ends the record.
func (o *Orchestrator) provisionApp(ctx context.Context, kms, tvs transport.Session, rec Record, e *Entry) {
	root := e.Root

	e.Stage = StageCredentials
	creds, err := o.creds.Credentials(root, o.cfg.EmailDomain)
	if err != nil {
		e.fail(KindUnexpectedFailure, e.Stage, err)
		return
	}
	e.Credentials = &creds

	log := slog.With("app", root, "username", creds.Username)
	log.Info("Provisioning app", "email", creds.Email)

	e.Stage = StageUser
	user, err := o.km.CreateUser(ctx, kms, keymanager.UserRequest{
		Username: creds.Username,
		Password: creds.Password,
		Email:    creds.Email,
		Name:     root,
	})
	if err != nil {
		o.failed(log, e, KindUserCreationFailed, "Failed to create user", err)
		return
	}
	e.Responses.User = user

	e.Stage = StageOwnerID
	ownerID, err := user.OwnerID()
	if err != nil {
		log.Error("Could not find owner id in user response", "fields", keymanager.OwnerIDFields)
		e.fail(KindOwnerIDMissing, e.Stage, err)
		return
	}
	e.Responses.OwnerID = ownerID

	keyName := KeyName(root)
	e.Stage = StageKey
	key, err := o.km.CreateKey(ctx, kms, keymanager.KeyRequest{Name: keyName, OwnerID: ownerID})
	if err != nil {
		o.failed(log, e, KindKeyCreationFailed, "Failed to create key", err, "key", keyName, "owner_id", ownerID)
		return
	}
	e.Responses.Key = key

	log.Info("Starting token vault provisioning", "key", keyName)

	e.Stage = StageVaultUser
	vaultUser, err := o.tv.CreateUser(ctx, tvs, creds.Username, creds.Email, creds.Password)
	if err != nil {
		o.unexpected(log, e, err)
		return
	}
	e.Responses.VaultUser = vaultUser

	// The vault key shares the key manager key's name; nothing references it by id.
	e.Stage = StageVaultKey
	vaultKey, err := o.tv.CreateKey(ctx, tvs, keyName, false)
	if err != nil {
		o.unexpected(log, e, err)
		return
	}
	e.Responses.VaultKey = vaultKey

	e.Stage = StageTokenPermission
	tokenPerm, err := o.tv.GrantTokenPermission(ctx, tvs, creds.Username, keyName)
	if err != nil {
		o.failed(log, e, KindPermissionGrantFailed, "Failed to grant token permission", err, "key", keyName)
		return
	}
	e.Responses.TokenPermission = tokenPerm

	e.Stage = StageCryptoPermission
	cryptoPerm, err := o.tv.GrantCryptoPermission(ctx, tvs, creds.Username, keyName)
	if err != nil {
		o.failed(log, e, KindPermissionGrantFailed, "Failed to grant crypto permission", err, "key", keyName)
		return
	}
	e.Responses.CryptoPermission = cryptoPerm

	tgName := TokenGroupName(root)
	e.Stage = StageTokenGroup
	tg, err := o.tv.CreateTokenGroup(ctx, tvs, tgName, keyName)
	if err != nil {
		o.unexpected(log, e, err)
		return
	}
	e.Responses.TokenGroup = tg

	e.Stage = StageTemplate
	e.Responses.Templates = []tokenvault.Template{}
	for _, charset := range rec.CharacterSets {
		specs, ok := tokenvault.TemplatesFor(root, charset)
		if !ok {
			log.Warn("Unknown character set, no template created", "charset", charset)
			continue
		}
		for _, spec := range specs {
			spec.Tenant = tgName
			tpl, err := o.tv.CreateTokenTemplate(ctx, tvs, spec)
			if err != nil {
				o.unexpected(log, e, err)
				return
			}
			e.Responses.Templates = append(e.Responses.Templates, *tpl)
		}
	}

	e.Kind = KindOK
	e.Stage = ""
	log.Info("Provisioned app", "tenant", tgName, "templates", len(e.Responses.Templates))
}

// provisionClient creates the transparent-encryption key, client profile, registration
// token, user and process sets and the transformation policy for one client.
func (o *Orchestrator) provisionClient(ctx context.Context, kms transport.Session, rec Record, e *Entry) {
	root := e.Root
	log := slog.With("client", root)
	log.Info("Provisioning client")

	keyName := CTEKeyName(root)
	e.Stage = StageKey
	key, err := o.km.CreateCTEKey(ctx, kms, keyName, o.cfg.CTEOwnerID)
	if err != nil {
		o.failed(log, e, KindKeyCreationFailed, "Failed to create key", err, "key", keyName)
		return
	}
	e.Responses.Key = key
	e.Responses.OwnerID = o.cfg.CTEOwnerID

	profileName := ProfileName(root)
	e.Stage = StageProfile
	profile, err := o.km.CreateClientProfile(ctx, kms, profileName, fmt.Sprintf("Profile for %s client", root), keyName)
	if err != nil {
		o.unexpected(log, e, err)
		return
	}
	e.Responses.Profile = profile

	e.Stage = StageRegToken
	token, err := o.km.CreateRegistrationToken(ctx, kms, profile.ID.String(), rec.MaxAllowed, profileName)
	if err != nil {
		o.unexpected(log, e, err)
		return
	}
	e.Responses.RegistrationToken = token

	e.Stage = StageUserSet
	userSet, err := o.km.CreateUserSet(ctx, kms, UserSetName(root), fmt.Sprintf("Authorized users for app %s", root), rec.AuthorizedUsers)
	if err != nil {
		o.unexpected(log, e, err)
		return
	}
	e.Responses.UserSet = userSet

	if len(rec.AuthorizedProcesses) > 0 {
		e.Stage = StageProcessSet
		processSet, err := o.km.CreateProcessSet(ctx, kms, ProcessSetName(root), fmt.Sprintf("Authorized process for app %s", root), rec.AuthorizedProcesses)
		if err != nil {
			o.unexpected(log, e, err)
			return
		}
		e.Responses.ProcessSet = processSet
	}

	e.Stage = StagePolicy
	policy, err := o.km.CreatePolicy(ctx, kms, keymanager.NewLDTPolicy(PolicyName(root), userSet.Ref(), rec.CurrentKey, keyName))
	if err != nil {
		o.unexpected(log, e, err)
		return
	}
	e.Responses.Policy = policy

	e.Kind = KindOK
	e.Stage = ""
	log.Info("Provisioned client", "key", keyName, "policy", policy.Ref())
}

func (o *Orchestrator) unexpected(log *slog.Logger, e *Entry, err error) {
	o.failed(log, e, KindUnexpectedFailure, "Unexpected provisioning failure", err)
}

// failed logs err and fails e at its current stage. A conflict means the resource is
// left over from an earlier run and has to be removed by hand before a retry.
func (o *Orchestrator) failed(log *slog.Logger, e *Entry, kind Kind, msg string, err error, args ...any) {
	args = append(args, "stage", e.Stage, "error", err)
	if transport.IsStatus(err, http.StatusConflict) {
		args = append(args, "already_exists", true)
	}
	log.Error(msg, args...)
	e.fail(kind, e.Stage, err)
}
