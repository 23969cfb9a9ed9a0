package sandbox

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// resolvedUser is what ResolveUser returns for the privilege-drop step
// (spec.md §4.4 step 4).
type resolvedUser struct {
	UID  int
	GID  int
	Home string
}

// ResolveUser looks up name in /etc/passwd directly rather than through
// os/user, matching other_examples/5ef18eb3_semiotic-agentium-matchlock's
// resolveUser — a static binary that must not depend on cgo's NSS lookup
// path, which is exactly the launcher's situation.
func ResolveUser(name string) (resolvedUser, error) {
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return resolvedUser{}, fmt.Errorf("open /etc/passwd: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 6 || fields[0] != name {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return resolvedUser{}, fmt.Errorf("parse uid for %q: %w", name, err)
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return resolvedUser{}, fmt.Errorf("parse gid for %q: %w", name, err)
		}
		return resolvedUser{UID: uid, GID: gid, Home: fields[5]}, nil
	}
	if err := scanner.Err(); err != nil {
		return resolvedUser{}, fmt.Errorf("read /etc/passwd: %w", err)
	}
	return resolvedUser{}, fmt.Errorf("user %q not found in /etc/passwd", name)
}

// ResolveSupplementaryGroups scans /etc/group for name the same way
// ResolveUser scans /etc/passwd, reproducing libc initgroups(3)'s lookup
// (primary gid plus every group whose member list contains name) without
// NSS/cgo. A missing /etc/group degrades to just primaryGID, matching
// initgroups' own behavior when no supplementary groups exist; any other
// error opening or reading it is returned.
func ResolveSupplementaryGroups(name string, primaryGID int) ([]int, error) {
	gids := []int{primaryGID}

	f, err := os.Open("/etc/group")
	if err != nil {
		if os.IsNotExist(err) {
			return gids, nil
		}
		return nil, fmt.Errorf("open /etc/group: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}
		member := false
		for _, m := range strings.Split(fields[3], ",") {
			if m == name {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		if gid != primaryGID {
			gids = append(gids, gid)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read /etc/group: %w", err)
	}
	return gids, nil
}
