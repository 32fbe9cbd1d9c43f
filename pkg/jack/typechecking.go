package jack

import (
	"fmt"
	"strings"
)

// TypeChecker performs a shallow pass over a 'jack.Program', enough to catch the
// mistakes that would otherwise surface as a cryptic failure during lowering:
// undeclared variables and calls to unknown classes or subroutines. It does not
// compare a call's argument count with the callee's parameters, nor perform full
// type inference or enforce assignment-compatibility between declared and actual
// expression types, that is considered out of scope.
type TypeChecker struct {
	program Program
	scopes  ScopeTable // Keeps track of the scopes and declared variables inside each one
}

func NewTypeChecker(program Program) TypeChecker {
	return TypeChecker{program: program}
}

func (tc *TypeChecker) Check() (bool, error) {
	if tc.program == nil {
		return false, fmt.Errorf("the given 'program' is empty or nil")
	}

	for name, class := range tc.program {
		_, err := tc.HandleClass(class)
		if err != nil {
			return false, fmt.Errorf("error type-checking class '%s': %w", name, err)
		}

	}

	return true, nil
}

// Specialized function to type-check a 'jack.Class' and nested fields.
func (tc *TypeChecker) HandleClass(class Class) (bool, error) {
	tc.scopes.PushClassScope(class.Name) // Keep track of the current scope being processed
	defer tc.scopes.PopClassScope()      // Reset the function name after processing

	for _, field := range class.Fields.Entries() {
		_, err := tc.HandleVarStmt(VarStmt{Vars: []Variable{field.Value}})
		if err != nil {
			return false, fmt.Errorf("error handling field '%s' in class '%s': %w", field.Key, class.Name, err)
		}
	}

	for _, subroutine := range class.Subroutines.Entries() {
		_, err := tc.HandleSubroutine(subroutine.Value)
		if err != nil {
			return false, fmt.Errorf("error handling subroutine '%s' in class '%s': %w", subroutine.Key, class.Name, err)
		}
	}

	return true, nil
}

// Specialized function to type-check a 'jack.Subroutine' and nested fields.
func (tc *TypeChecker) HandleSubroutine(subroutine Subroutine) (bool, error) {
	tc.scopes.PushSubRoutineScope(subroutine.Name) // Keep track of the current subroutine function being processed
	defer tc.scopes.PopSubroutineScope()           // Reset the function name after processing

	if subroutine.Type == Method {
		tc.scopes.RegisterVariable(Variable{Name: "__obj", VarType: Parameter, DataType: DataType{Main: Object}})
	}

	// We add to the current scope also all of the arguments of the subroutine
	for _, arg := range subroutine.Arguments.Entries() {
		// Like this we're actually supporting shadowing of variables, so if a variable
		// with the same name is already present in the current scope, we just temporarily
		// override it with the most update one instead of returning an error (like Go does BTW).
		tc.scopes.RegisterVariable(arg.Value)
	}

	for _, stmt := range subroutine.Statements {
		_, err := tc.HandleStatement(stmt)
		if err != nil {
			return false, fmt.Errorf("error handling nested statement %T: %w", stmt, err)
		}
	}

	return true, nil
}

// Generalized function to type-check multiple statements types.
func (tc *TypeChecker) HandleStatement(stmt Statement) (bool, error) {
	switch tStmt := stmt.(type) {
	case DoStmt:
		return tc.HandleExpressionOk(tStmt.FuncCall)
	case VarStmt:
		return tc.HandleVarStmt(tStmt)
	case LetStmt:
		if _, err := tc.HandleExpression(tStmt.Lhs); err != nil {
			return false, fmt.Errorf("error handling LHS of let statement: %w", err)
		}
		return tc.HandleExpressionOk(tStmt.Rhs)
	case IfStmt:
		if _, err := tc.HandleExpression(tStmt.Condition); err != nil {
			return false, fmt.Errorf("error handling if condition: %w", err)
		}
		for _, inner := range append(append([]Statement{}, tStmt.ThenBlock...), tStmt.ElseBlock...) {
			if _, err := tc.HandleStatement(inner); err != nil {
				return false, err
			}
		}
		return true, nil
	case WhileStmt:
		if _, err := tc.HandleExpression(tStmt.Condition); err != nil {
			return false, fmt.Errorf("error handling while condition: %w", err)
		}
		for _, inner := range tStmt.Block {
			if _, err := tc.HandleStatement(inner); err != nil {
				return false, err
			}
		}
		return true, nil
	case ReturnStmt:
		if tStmt.Expr == nil {
			return true, nil
		}
		return tc.HandleExpressionOk(tStmt.Expr)
	default:
		return false, fmt.Errorf("unrecognized statement: %T", stmt)
	}
}

func (tc *TypeChecker) HandleExpressionOk(expr Expression) (bool, error) {
	_, err := tc.HandleExpression(expr)
	return err == nil, err
}

// Specialized function to type-check a 'jack.VarStmt', registering the new variables.
func (tc *TypeChecker) HandleVarStmt(statement VarStmt) (bool, error) {
	for _, variable := range statement.Vars {
		tc.scopes.RegisterVariable(variable)
	}
	return true, nil
}

// Generalized function to shallow-check an expression, resolving variable references
// and subroutine calls but never inferring the resulting DataType.
func (tc *TypeChecker) HandleExpression(expr Expression) (bool, error) {
	switch tExpr := expr.(type) {
	case VarExpr:
		if tExpr.Var == "this" {
			return true, nil
		}
		if _, _, err := tc.scopes.ResolveVariable(tExpr.Var); err != nil {
			return false, err
		}
		return true, nil

	case LiteralExpr:
		return true, nil

	case ArrayExpr:
		if _, _, err := tc.scopes.ResolveVariable(tExpr.Var); err != nil {
			return false, err
		}
		return tc.HandleExpressionOk(tExpr.Index)

	case UnaryExpr:
		return tc.HandleExpressionOk(tExpr.Rhs)

	case BinaryExpr:
		if _, err := tc.HandleExpression(tExpr.Lhs); err != nil {
			return false, err
		}
		return tc.HandleExpressionOk(tExpr.Rhs)

	case FuncCallExpr:
		for _, arg := range tExpr.Arguments {
			if _, err := tc.HandleExpression(arg); err != nil {
				return false, err
			}
		}
		return tc.checkFuncCallTarget(tExpr)

	default:
		return false, fmt.Errorf("unrecognized expression: %T", expr)
	}
}

// Resolves the callee of a 'jack.FuncCallExpr' against either the current class, a known
// variable's class or a top-level class of the program, erroring if none of those apply.
func (tc *TypeChecker) checkFuncCallTarget(expression FuncCallExpr) (bool, error) {
	if !expression.IsExtCall {
		className := strings.Split(tc.scopes.GetScope(), ".")[0]
		class, exists := tc.program[className]
		if !exists {
			return false, fmt.Errorf("class definition not found for '%s'", className)
		}
		if _, exists := class.Subroutines.Get(expression.FuncName); !exists {
			return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, className)
		}
		return true, nil
	}

	if _, variable, err := tc.scopes.ResolveVariable(expression.Var); err == nil {
		class, exists := tc.program[variable.DataType.Subtype]
		if !exists {
			return false, fmt.Errorf("class definition not found for '%s'", variable.DataType.Subtype)
		}
		if _, exists := class.Subroutines.Get(expression.FuncName); !exists {
			return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, variable.DataType.Subtype)
		}
		return true, nil
	}

	class, exists := tc.program[expression.Var]
	if !exists {
		return false, fmt.Errorf("class definition not found for '%s'", expression.Var)
	}
	if _, exists := class.Subroutines.Get(expression.FuncName); !exists {
		return false, fmt.Errorf("subroutine '%s' not found in class '%s'", expression.FuncName, class.Name)
	}
	return true, nil
}
