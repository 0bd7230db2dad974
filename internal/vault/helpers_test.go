package vault

import "github.com/MrSnakeDoc/stash/internal/domain"

func patch(title *string, tags *[]string) domain.VaultPatch {
	return domain.VaultPatch{Title: title, Tags: tags}
}
