package guidemo

import (
	"github.com/charmbracelet/huh"

	"github.com/cwilbanks/tnterm/internal/apperrors"
)

// PromptCredentials shows a terminal form collecting sign-on credentials
// when none were supplied on the command line, per spec §6's CLI
// collaborator (`--user`/`--password` flags bypass this).
func PromptCredentials() (username, password string, err error) {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").Value(&username),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password),
		),
	)
	if runErr := form.Run(); runErr != nil {
		return "", "", apperrors.Wrap(apperrors.KindConnectFailed, runErr, "credential prompt canceled")
	}
	return username, password, nil
}
