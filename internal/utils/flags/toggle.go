package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const (
	toggleAnnotationKeyConstant = "subpkg/toggle"
	toggleTrueCanonicalValue    = "true"
	toggleFalseCanonicalValue   = "false"
	toggleYesChoice             = "yes"
	toggleNoChoice              = "no"
	toggleValueTypeName         = "bool"
	toggleParseErrorTemplate    = "invalid toggle value %q: expected yes or no"
	longFlagPrefixConstant      = "--"
	flagValueSeparatorConstant  = "="
	argumentTerminatorConstant  = "--"
)

var toggleLiterals = map[string]bool{
	toggleTrueCanonicalValue:  true,
	toggleYesChoice:           true,
	"on":                      true,
	"1":                       true,
	"y":                       true,
	"t":                       true,
	toggleFalseCanonicalValue: false,
	toggleNoChoice:            false,
	"off":                     false,
	"0":                       false,
	"n":                       false,
	"f":                       false,
}

// AddToggleFlag registers a boolean flag that accepts yes/no style values, either attached with "="
// or, after NormalizeToggleArguments, as the following argument.
func AddToggleFlag(flagSet *pflag.FlagSet, name string, defaultValue bool, description string) {
	if flagSet == nil || len(name) == 0 {
		return
	}

	defaultChoice := toggleNoChoice
	if defaultValue {
		defaultChoice = toggleYesChoice
	}
	flagSet.Var(&toggleFlagValue{current: defaultValue}, name, FormatChoiceUsage(defaultChoice, []string{toggleYesChoice, toggleNoChoice}, description))

	flag := flagSet.Lookup(name)
	flag.NoOptDefVal = toggleTrueCanonicalValue
	_ = flagSet.SetAnnotation(name, toggleAnnotationKeyConstant, []string{toggleTrueCanonicalValue})
}

// IsToggleFlag reports whether the flag was registered through AddToggleFlag.
func IsToggleFlag(flag *pflag.Flag) bool {
	if flag == nil {
		return false
	}
	_, annotated := flag.Annotations[toggleAnnotationKeyConstant]
	return annotated
}

// ToggleFlagNames collects the names of toggle flags across the flag sets.
func ToggleFlagNames(flagSets ...*pflag.FlagSet) map[string]struct{} {
	names := make(map[string]struct{})
	for _, flagSet := range flagSets {
		if flagSet == nil {
			continue
		}
		flagSet.VisitAll(func(flag *pflag.Flag) {
			if IsToggleFlag(flag) {
				names[flag.Name] = struct{}{}
			}
		})
	}
	return names
}

// NormalizeToggleArguments rewrites "--flag value" into "--flag=value" for known toggle flags when the
// value is a toggle literal. Any other following argument is left alone so positional arguments survive.
func NormalizeToggleArguments(arguments []string, toggleNames map[string]struct{}) []string {
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		if argument == argumentTerminatorConstant {
			normalized = append(normalized, arguments[index:]...)
			break
		}

		flagName, isLongFlag := strings.CutPrefix(argument, longFlagPrefixConstant)
		_, isToggle := toggleNames[flagName]
		if !isLongFlag || !isToggle || index+1 >= len(arguments) {
			normalized = append(normalized, argument)
			continue
		}
		nextArgument := arguments[index+1]
		if _, isLiteral := toggleLiterals[strings.ToLower(strings.TrimSpace(nextArgument))]; !isLiteral {
			normalized = append(normalized, argument)
			continue
		}

		normalized = append(normalized, argument+flagValueSeparatorConstant+nextArgument)
		index++
	}
	return normalized
}

type toggleFlagValue struct {
	current bool
}

func (value *toggleFlagValue) Set(rawValue string) error {
	trimmedValue := strings.ToLower(strings.TrimSpace(rawValue))
	if len(trimmedValue) == 0 {
		trimmedValue = toggleTrueCanonicalValue
	}
	parsedValue, known := toggleLiterals[trimmedValue]
	if !known {
		return fmt.Errorf(toggleParseErrorTemplate, rawValue)
	}
	value.current = parsedValue
	return nil
}

func (value *toggleFlagValue) String() string {
	if value != nil && value.current {
		return toggleTrueCanonicalValue
	}
	return toggleFalseCanonicalValue
}

func (value *toggleFlagValue) Type() string {
	return toggleValueTypeName
}
