// Command validate checks the ruleset files (JSON or YAML) in a configs
// directory, ../configs unless a directory is given as the first argument.
// It checks:
//   - the file parses and passes the engine's rule validation
//   - the ruleset name matches the file name it is served under
//   - tanks can ever act (starting or daily action points)
//   - the board has room for more than a couple of tanks
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/tank-tactics/game/config"
)

// ValidationResult captures the outcome of validating a single file.
// Info holds facts about a valid ruleset; Warnings never make a file invalid.
type ValidationResult struct {
	File     string
	Valid    bool
	Errors   []string
	Warnings []string
	Info     []string
}

// validateRuleset loads and checks a single ruleset file
func validateRuleset(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
	}

	rules, err := config.ParseRulesetFile(filePath)
	if err != nil {
		result.Valid = false
		if errors.Is(err, config.ErrInvalidRuleset) {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid rules: %v", err))
		} else {
			result.Errors = append(result.Errors, err.Error())
		}
		return result
	}

	id := strings.TrimSuffix(result.File, filepath.Ext(result.File))
	if rules.Name != id {
		result.Warnings = append(result.Warnings, fmt.Sprintf("name %q does not match file name %q", rules.Name, id))
	}

	if rules.StartingActions == 0 && rules.DailyActionPoints == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "starting_actions and daily_action_points are both 0: tanks can never act")
	}

	cells := rules.Cols * rules.Rows
	if cells < 4 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("board has only %d cells", cells))
	}
	if rules.StartingRange >= max(rules.Cols, rules.Rows) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("starting_range %d covers the whole board", rules.StartingRange))
	}

	if result.Valid {
		hearts := "off"
		if rules.HeartPickups {
			hearts = "on"
		}
		result.Info = append(result.Info,
			fmt.Sprintf("✓ Name: %s", rules.Name),
			fmt.Sprintf("✓ Board: %dx%d", rules.Cols, rules.Rows),
			fmt.Sprintf("✓ Tanks start with life %d, range %d, actions %d", rules.StartingLife, rules.StartingRange, rules.StartingActions),
			fmt.Sprintf("✓ Daily action points: %d", rules.DailyActionPoints),
			fmt.Sprintf("✓ Heart pickups: %s", hearts),
		)
	}

	return result
}

// rulesetFiles lists the JSON and YAML files in dir, sorted
func rulesetFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// main validates every ruleset file, printing a concise report and exiting
// with non-zero status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := rulesetFiles(configDir)
	if err != nil {
		fmt.Printf("Error finding ruleset files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No ruleset files found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateRuleset(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Info {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				fmt.Println("  ❌ " + err)
			}
		}
		for _, warning := range result.Warnings {
			fmt.Println("  ⚠️  " + warning)
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All rulesets are valid!")
	} else {
		fmt.Println("❌ Some rulesets have errors")
		os.Exit(1)
	}
}
