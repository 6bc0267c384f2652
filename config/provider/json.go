package provider

import (
	"encoding/json"
	"io"
	"os"
	"reflect"
	"strconv"
	"sync"

	"github.com/oddbit-project/walletguard/config"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrJsonInvalidSource = utils.Error("NewJsonProvider: invalid source type")
)

// JsonProvider reads configuration from a JSON document
type JsonProvider struct {
	configData map[string]json.RawMessage
	m          sync.RWMutex
}

// NewJsonProvider creates a provider from a json.RawMessage, []byte, io.Reader or file name
func NewJsonProvider(src interface{}) (config.ConfigProvider, error) {
	provider := &JsonProvider{
		configData: make(map[string]json.RawMessage),
	}

	var data []byte
	switch v := src.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case io.Reader:
		buf, err := io.ReadAll(v)
		if err != nil {
			return nil, err
		}
		data = buf
	case string:
		buf, err := os.ReadFile(v)
		if err != nil {
			return nil, err
		}
		data = buf
	default:
		return nil, ErrJsonInvalidSource
	}

	if err := json.Unmarshal(data, &provider.configData); err != nil {
		return nil, err
	}
	return provider, nil
}

// applyDefaults fills zero-valued fields from their `default` struct tag
func applyDefaults(dest interface{}) {
	v := reflect.ValueOf(dest)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if def := field.Tag.Get("default"); def != "" && fv.IsZero() {
			switch fv.Kind() {
			case reflect.String:
				fv.SetString(def)
			case reflect.Int, reflect.Int32, reflect.Int64:
				if n, err := strconv.ParseInt(def, 10, 64); err == nil {
					fv.SetInt(n)
				}
			case reflect.Uint, reflect.Uint32, reflect.Uint64:
				if n, err := strconv.ParseUint(def, 10, 64); err == nil {
					fv.SetUint(n)
				}
			case reflect.Bool:
				if b, err := strconv.ParseBool(def); err == nil {
					fv.SetBool(b)
				}
			case reflect.Float32, reflect.Float64:
				if f, err := strconv.ParseFloat(def, 64); err == nil {
					fv.SetFloat(f)
				}
			}
		}

		if fv.Kind() == reflect.Struct {
			applyDefaults(fv.Addr().Interface())
		}
	}
}

func (j *JsonProvider) GetKey(key string, dest interface{}) error {
	j.m.RLock()
	defer j.m.RUnlock()
	v, ok := j.configData[key]
	if !ok {
		return config.ErrNoKey
	}
	if err := json.Unmarshal(v, dest); err != nil {
		return err
	}
	applyDefaults(dest)
	return nil
}

// Get de-serializes everything to dest
func (j *JsonProvider) Get(dest interface{}) error {
	j.m.RLock()
	defer j.m.RUnlock()
	data, err := json.Marshal(j.configData)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, dest); err != nil {
		return err
	}
	applyDefaults(dest)
	return nil
}

func (j *JsonProvider) GetStringKey(key string) (string, error) {
	var result string
	err := j.GetKey(key, &result)
	return result, err
}

func (j *JsonProvider) GetConfigNode(key string) (config.ConfigProvider, error) {
	j.m.RLock()
	defer j.m.RUnlock()
	if v, ok := j.configData[key]; ok {
		return NewJsonProvider(v)
	}
	return nil, config.ErrNoKey
}

func (j *JsonProvider) KeyExists(key string) bool {
	j.m.RLock()
	defer j.m.RUnlock()
	_, ok := j.configData[key]
	return ok
}
