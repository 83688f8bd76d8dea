// ABOUTME: The host API exposed to module scripts: settings, db, log.
// ABOUTME: Converts between Lua values and Go settings/database values.

package registry

import (
	"context"
	"fmt"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/bothive/bothive/internal/db"
	"github.com/bothive/bothive/internal/settings"
)

// buildHost constructs the table passed to a module's Setup:
//
//	host.name                                  -- module identifier
//	host.log(level, msg)                       -- structured log line
//	host.settings.get_or_create(path, default) -- value
//	host.settings.put(path, value [, coerce])
//	host.settings.get(path)                    -- value | nil, "not found"
//	host.db.execute(sql, ...)                  -- {columns=..., rows=...}
//	host.db.commit()
//
// Settings and database failures raise Lua errors, which the protected
// Setup call catches and reports through the module's descriptor.
func buildHost(L *lua.LState, id string, accessor *settings.Accessor, database *db.Accessor, logger *slog.Logger) *lua.LTable {
	modLogger := logger.With("module", id)

	host := L.NewTable()
	L.SetField(host, "name", lua.LString(id))
	L.SetField(host, "log", L.NewFunction(func(L *lua.LState) int {
		level := L.CheckString(1)
		msg := L.CheckString(2)
		switch level {
		case "debug":
			modLogger.Debug(msg)
		case "warn":
			modLogger.Warn(msg)
		case "error":
			modLogger.Error(msg)
		default:
			modLogger.Info(msg)
		}
		return 0
	}))

	st := L.NewTable()
	L.SetField(st, "get_or_create", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		def := luaToGo(L.Get(2))
		value, err := accessor.GetOrCreate(path, def)
		if err != nil {
			L.RaiseError("settings get_or_create %s: %s", path, err)
			return 0
		}
		L.Push(goToLua(L, value))
		return 1
	}))
	L.SetField(st, "put", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		value := luaToGo(L.Get(2))
		coerce := L.OptBool(3, false)

		var err error
		if coerce {
			err = accessor.PutCoerce(path, value)
		} else {
			err = accessor.Put(path, value)
		}
		if err != nil {
			L.RaiseError("settings put %s: %s", path, err)
		}
		return 0
	}))
	L.SetField(st, "get", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		value, err := accessor.Get(path)
		if err != nil {
			L.Push(lua.LNil)
			L.Push(lua.LString("not found"))
			return 2
		}
		L.Push(goToLua(L, value))
		return 1
	}))
	L.SetField(host, "settings", st)

	dbt := L.NewTable()
	L.SetField(dbt, "execute", L.NewFunction(func(L *lua.LState) int {
		query := L.CheckString(1)
		args := make([]any, 0, L.GetTop()-1)
		for i := 2; i <= L.GetTop(); i++ {
			args = append(args, luaToGo(L.Get(i)))
		}

		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rows, err := database.Execute(ctx, query, args...)
		if err != nil {
			L.RaiseError("db execute: %s", err)
			return 0
		}
		L.Push(rowsToLua(L, rows))
		return 1
	}))
	L.SetField(dbt, "commit", L.NewFunction(func(L *lua.LState) int {
		if err := database.Commit(); err != nil {
			L.RaiseError("db commit: %s", err)
		}
		return 0
	}))
	L.SetField(host, "db", dbt)

	return host
}

// rowsToLua converts a query result into {columns={...}, rows={{...}}}.
func rowsToLua(L *lua.LState, rows *db.Rows) *lua.LTable {
	out := L.NewTable()

	columns := L.NewTable()
	for _, col := range rows.Columns {
		columns.Append(lua.LString(col))
	}
	L.SetField(out, "columns", columns)

	values := L.NewTable()
	for _, row := range rows.Values {
		rowTbl := L.NewTable()
		for _, v := range row {
			rowTbl.Append(goToLua(L, v))
		}
		values.Append(rowTbl)
	}
	L.SetField(out, "rows", values)

	return out
}

// luaToGo converts a Lua value to the settings value model. A table whose
// keys are exactly the contiguous integers 1..n becomes a list; any other
// table becomes a string-keyed map, with numeric keys stringified, so a
// mixed array/hash table loses nothing.
func luaToGo(v lua.LValue) any {
	switch t := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return float64(t)
	case lua.LString:
		return string(t)
	case *lua.LTable:
		n := t.MaxN()
		entries := 0
		t.ForEach(func(_, _ lua.LValue) { entries++ })
		if n > 0 && entries == n {
			list := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				list = append(list, luaToGo(t.RawGetInt(i)))
			}
			return list
		}
		m := make(map[string]any, entries)
		t.ForEach(func(k, val lua.LValue) {
			m[lua.LVAsString(k)] = luaToGo(val)
		})
		return m
	default:
		return lua.LVAsString(v)
	}
}

// goToLua converts a settings or database value into a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	case []byte:
		return lua.LString(t)
	case []any:
		tbl := L.NewTable()
		for _, item := range t {
			tbl.Append(goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range t {
			L.SetField(tbl, k, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(t))
	}
}
