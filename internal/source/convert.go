package source

import "github.com/BartekS5/cmigrate/pkg/utils"

func toString(v interface{}) string {
	s, err := utils.ConvertToString(v)
	if err != nil {
		return ""
	}
	return s
}
