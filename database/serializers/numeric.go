package serializers

import (
	"context"
	"fmt"
	"math/big"
	"reflect"

	"github.com/jackc/pgtype"
	"gorm.io/gorm/schema"
)

var (
	big10    = big.NewInt(10)
	u256Span = new(big.Int).Lsh(big.NewInt(1), 256)
	i256Span = new(big.Int).Lsh(big.NewInt(1), 255)

	bigIntType = reflect.TypeOf((*big.Int)(nil))
)

// NumericSerializer maps *big.Int onto a postgres NUMERIC column. "u256"
// holds amounts and fees, "i256" holds signed balance deltas.
type NumericSerializer struct {
	Signed bool
}

func init() {
	schema.RegisterSerializer("u256", NumericSerializer{})
	schema.RegisterSerializer("i256", NumericSerializer{Signed: true})
}

func (s NumericSerializer) checkRange(n *big.Int) error {
	if s.Signed {
		if new(big.Int).Abs(n).Cmp(i256Span) >= 0 {
			return fmt.Errorf("number does not fit in i256: %s", n)
		}
		return nil
	}
	if n.Sign() < 0 {
		return fmt.Errorf("negative number in u256 column: %s", n)
	}
	if n.Cmp(u256Span) >= 0 {
		return fmt.Errorf("number larger than u256 can hold: %s", n)
	}
	return nil
}

func (s NumericSerializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	if dbValue == nil {
		return nil
	} else if field.FieldType != bigIntType {
		return fmt.Errorf("can only deserialize into a *big.Int: %T", field.FieldType)
	}

	numeric := new(pgtype.Numeric)
	if err := numeric.Scan(dbValue); err != nil {
		return err
	}
	if numeric.Status != pgtype.Present {
		return nil
	}

	bigInt := new(big.Int).Set(numeric.Int)
	if numeric.Exp > 0 {
		factor := new(big.Int).Exp(big10, big.NewInt(int64(numeric.Exp)), nil)
		bigInt.Mul(bigInt, factor)
	} else if numeric.Exp < 0 {
		factor := new(big.Int).Exp(big10, big.NewInt(int64(-numeric.Exp)), nil)
		bigInt.Quo(bigInt, factor)
	}
	if err := s.checkRange(bigInt); err != nil {
		return err
	}

	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(bigInt))
	return nil
}

func (s NumericSerializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	if fieldValue == nil || (field.FieldType.Kind() == reflect.Pointer && reflect.ValueOf(fieldValue).IsNil()) {
		return nil, nil
	} else if field.FieldType != bigIntType {
		return nil, fmt.Errorf("can only serialize a *big.Int: %T", field.FieldType)
	}

	bigInt := fieldValue.(*big.Int)
	if err := s.checkRange(bigInt); err != nil {
		return nil, err
	}
	numeric := pgtype.Numeric{Int: bigInt, Status: pgtype.Present}
	return numeric.Value()
}
