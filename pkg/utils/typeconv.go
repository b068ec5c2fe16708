package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BartekS5/cmigrate/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConvertField coerces a source value to the destination type declared by cfg.
func ConvertField(val interface{}, cfg models.FieldConfig) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch cfg.Type {
	case "datetime":
		return ConvertDateTime(val, cfg.Format)
	case "int":
		return ConvertToInt(val)
	case "bool":
		return ConvertToBool(val)
	case "string", "enum":
		return ConvertToString(val)
	default:
		return val, nil
	}
}

func ConvertDateTime(val interface{}, format string) (interface{}, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case primitive.DateTime:
		return v.Time(), nil
	case int64:
		// legacy schemas store unix seconds
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		if format == "unix" {
			secs, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("unable to parse unix time: %s", v)
			}
			return time.Unix(secs, 0).UTC(), nil
		}
		formats := []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
			"2006-01-02",
		}
		for _, f := range formats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v), format)
	default:
		return val, nil
	}
}

func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case primitive.DateTime:
		return int(v), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(v))
	case []byte:
		return strconv.Atoi(strings.TrimSpace(string(v)))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

func ConvertToBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int, int32, int64, float64:
		n, _ := ConvertToInt(v)
		return n != 0, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(v))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(v)))
	default:
		return false, fmt.Errorf("cannot convert %T to bool", val)
	}
}

func ConvertToString(val interface{}) (string, error) {
	switch v := val.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int, int32, int64, bool:
		return fmt.Sprintf("%v", v), nil
	case primitive.ObjectID:
		return v.Hex(), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", val)
	}
}
