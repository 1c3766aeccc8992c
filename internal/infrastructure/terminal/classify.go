package terminal

import (
	"strings"

	"github.com/doeshing/termai-go/internal/domain"
)

var dangerousFragments = []string{
	"rm -rf", "sudo rm", "format", "mkfs", "dd if=", "> /dev/",
}

var prefixKinds = []struct {
	kind     domain.CommandKind
	prefixes []string
}{
	{domain.KindGit, []string{"git "}},
	{domain.KindPackage, []string{"npm ", "yarn ", "pip ", "pip3 ", "apt ", "brew ", "yum ", "dnf ", "pacman "}},
	{domain.KindDev, []string{"make ", "cargo ", "go ", "python ", "python3 ", "node "}},
	{domain.KindNetwork, []string{"curl ", "wget ", "ping ", "ssh ", "scp ", "rsync "}},
	{domain.KindFileOp, []string{"cp ", "mv ", "rm ", "mkdir ", "rmdir ", "chmod ", "chown ", "ln "}},
	{domain.KindText, []string{"grep ", "sed ", "awk ", "cat ", "less ", "more ", "head ", "tail ", "sort ", "uniq "}},
	{domain.KindSystem, []string{"ps ", "top ", "htop ", "df ", "du ", "free ", "uptime ", "who "}},
	{domain.KindNavigation, []string{"cd ", "ls ", "pwd", "find ", "echo "}},
}

// Classify maps a command string to its CommandKind.
func Classify(command string) domain.CommandKind {
	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		return domain.KindOther
	}
	for _, frag := range dangerousFragments {
		if strings.Contains(command, frag) {
			return domain.KindDangerous
		}
	}
	for _, group := range prefixKinds {
		for _, prefix := range group.prefixes {
			if command == strings.TrimSpace(prefix) || strings.HasPrefix(command, prefix) {
				return group.kind
			}
		}
	}
	return domain.KindOther
}
