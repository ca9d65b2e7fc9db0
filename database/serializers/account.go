package serializers

import (
	"context"
	"fmt"
	"reflect"

	"gorm.io/gorm/schema"

	"github.com/dapplink-labs/ton-wallet-gateway/ledger"
)

var accountType = reflect.TypeOf(ledger.Account{})

// AccountSerializer stores a ledger.Account in its raw "<workchain>:<hex>" form.
type AccountSerializer struct{}

func init() {
	schema.RegisterSerializer("account", AccountSerializer{})
}

func (AccountSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	if dbValue == nil {
		return nil
	}

	var raw string
	switch v := dbValue.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("expected account string as the database value: %T", dbValue)
	}
	if raw == "" {
		return nil
	}

	account, err := ledger.ParseAccount(raw)
	if err != nil {
		return err
	}
	switch field.FieldType {
	case accountType:
		field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(account))
	case reflect.PointerTo(accountType):
		field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(&account))
	default:
		return fmt.Errorf("can only deserialize into a ledger.Account: %s", field.FieldType)
	}
	return nil
}

func (AccountSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	switch v := fieldValue.(type) {
	case ledger.Account:
		return v.String(), nil
	case *ledger.Account:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("can only serialize a ledger.Account: %T", fieldValue)
	}
}
